package stream

import (
	"context"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const backoffMin = time.Second

// Config bounds the stream fan-out; zero values get the venue defaults.
type Config struct {
	Testnet bool

	// Streams per combined-stream socket. Binance allows far more, but
	// smaller batches keep a single reconnect from blinding the whole
	// universe at once.
	BatchSize int

	IdleAfter  time.Duration // read deadline; silence past it drops the link
	BackoffCap time.Duration // reconnect backoff ceiling
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 60 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
}

// Manager fans a set of market-data streams across websocket
// connections and funnels every parsed event into one channel.
type Manager struct {
	cfg     Config
	baseURL string
	dialer  *websocket.Dialer
	out     chan Message

	mu      sync.Mutex
	current []string // sorted desired stream names
	sockets []*socket
	closed  bool
}

// socket is one combined-stream connection with its own lifecycle.
type socket struct {
	streams []string
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *socket) key() string { return strings.Join(s.streams, "/") }

// NewManager builds a stream manager for the futures data feed.
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()
	host := "fstream.binance.com"
	if cfg.Testnet {
		host = "stream.binancefuture.com"
	}
	return &Manager{
		cfg:     cfg,
		baseURL: (&url.URL{Scheme: "wss", Host: host, Path: "/stream"}).String(),
		dialer:  websocket.DefaultDialer,
		out:     make(chan Message, 1024),
	}
}

// Messages is the single output channel for all connections.
func (m *Manager) Messages() <-chan Message { return m.out }

// SetStreams reconciles the desired stream set against what is already
// connected. The sorted set is chunked into batches; a socket whose
// batch is unchanged keeps its connection, so a shortlist rotation or a
// position open never interrupts unrelated subscriptions. Only sockets
// whose batch actually changed are torn down and redialed. ctx bounds
// the lifetime of any new connections.
func (m *Manager) SetStreams(ctx context.Context, streams []string) {
	desired := append([]string(nil), streams...)
	sort.Strings(desired)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || equalStreams(m.current, desired) {
		return
	}
	m.current = desired

	var batches [][]string
	for start := 0; start < len(desired); start += m.cfg.BatchSize {
		end := min(start+m.cfg.BatchSize, len(desired))
		batches = append(batches, desired[start:end])
	}

	want := make(map[string]bool, len(batches))
	for _, b := range batches {
		want[strings.Join(b, "/")] = true
	}

	claimed := make(map[string]bool, len(batches))
	kept := m.sockets[:0:0]
	var stale []*socket
	for _, s := range m.sockets {
		if k := s.key(); want[k] && !claimed[k] {
			claimed[k] = true
			kept = append(kept, s)
			continue
		}
		stale = append(stale, s)
	}

	for _, s := range stale {
		s.cancel()
	}
	for _, s := range stale {
		<-s.done
	}
	m.sockets = kept

	started := 0
	for _, b := range batches {
		if !claimed[strings.Join(b, "/")] {
			m.startSocketLocked(ctx, b)
			started++
		}
	}
	log.Printf("stream: %d streams in %d sockets (%d kept, %d stopped, %d started)",
		len(desired), len(m.sockets), len(kept), len(stale), started)
}

// Close tears down every connection. The output channel stays open so
// in-flight consumers drain without a panic.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.current = nil
	for _, s := range m.sockets {
		s.cancel()
	}
	for _, s := range m.sockets {
		<-s.done
	}
	m.sockets = nil
}

func (m *Manager) startSocketLocked(ctx context.Context, streams []string) {
	sctx, cancel := context.WithCancel(ctx)
	s := &socket{
		streams: append([]string(nil), streams...),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.sockets = append(m.sockets, s)
	go m.run(sctx, s)
}

// run owns one connection: dial, read until error or idle, reconnect
// with exponential backoff. Exits only when the socket is cancelled.
func (m *Manager) run(ctx context.Context, s *socket) {
	defer close(s.done)

	u := m.baseURL + "?streams=" + strings.Join(s.streams, "/")
	backoff := backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := m.dialer.DialContext(ctx, u, nil)
		if err != nil {
			log.Printf("stream: dial (%d streams): %v, retrying in %s", len(s.streams), err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, m.cfg.BackoffCap)
			continue
		}
		log.Printf("stream: connected, %d streams", len(s.streams))
		backoff = backoffMin

		m.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("stream: connection lost (%d streams), reconnecting", len(s.streams))
	}
}

// readLoop pumps one connection until read error, idle timeout or
// cancellation. The venue pings periodically; gorilla answers pongs in
// ReadMessage, so silence past the deadline means the link is dead.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.IdleAfter))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("stream: read: %v", err)
			return
		}
		msg, ok, err := parseCombined(raw)
		if err != nil {
			log.Printf("stream: parse: %v", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case m.out <- msg:
		default:
			// Consumer is behind; dropping beats stalling the feed.
		}
	}
}

func nextBackoff(d, cap time.Duration) time.Duration {
	d *= 2
	if d > cap {
		return cap
	}
	return d
}

func equalStreams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
