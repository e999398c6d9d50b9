package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"momentum-core/internal/breaker"
	"momentum-core/internal/events"
	"momentum-core/internal/exit"
	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
	"momentum-core/pkg/db"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, *db.Database, *risk.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	riskMgr := risk.NewManager(exit.DefaultConfig(), 3, nil, nil, nil)
	riskMgr.SetBalance(1000)
	brk := breaker.New("")

	server := NewServer(events.NewBus(), database, riskMgr, brk, nil, SystemMeta{
		DryRun:    true,
		Timeframe: "15m",
		Version:   "test",
	})

	ts := httptest.NewServer(server.Router)
	t.Cleanup(func() {
		ts.Close()
		_ = database.Close()
	})
	return ts, database, riskMgr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	var resp struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, ts.URL+"/health", &resp); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if resp.Status != "ok" {
		t.Fatalf("status=%q", resp.Status)
	}
}

func TestShortClientRequestIDDoesNotBreakLogging(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	// Callers choose their own X-Request-ID; a short one must pass
	// through the logging middleware untrimmed instead of panicking.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Request-ID", "abc")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d with short request id", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "abc" {
		t.Fatalf("request id echoed as %q", got)
	}
}

func TestStatusReportsEngineState(t *testing.T) {
	ts, _, riskMgr := newTestAPIServer(t)

	if err := riskMgr.Register(&risk.Position{
		Symbol: "BTCUSDT", Side: signal.Long, Qty: 0.5, Entry: 100, Leverage: 20, Stop: 98.6,
		OpenedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var resp struct {
		Balance       float64 `json:"balance"`
		OpenPositions int     `json:"open_positions"`
		SlotsFree     bool    `json:"slots_free"`
		Breaker       struct {
			Paused bool `json:"paused"`
		} `json:"breaker"`
		Meta SystemMeta `json:"meta"`
	}
	if code := getJSON(t, ts.URL+"/api/status", &resp); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if resp.Balance != 1000 || resp.OpenPositions != 1 || !resp.SlotsFree {
		t.Fatalf("unexpected status: %+v", resp)
	}
	if resp.Breaker.Paused {
		t.Fatal("fresh breaker must not be paused")
	}
	if !resp.Meta.DryRun || resp.Meta.Timeframe != "15m" {
		t.Fatalf("meta=%+v", resp.Meta)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	ts, _, riskMgr := newTestAPIServer(t)

	if err := riskMgr.Register(&risk.Position{
		Symbol: "SOLUSDT", Side: signal.Short, Qty: 40, Entry: 58.2, Leverage: 20, Stop: 59.0,
		OpenedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var resp []positionView
	if code := getJSON(t, ts.URL+"/api/positions", &resp); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(resp) != 1 {
		t.Fatalf("positions=%d, expected 1", len(resp))
	}
	p := resp[0]
	if p.Symbol != "SOLUSDT" || p.Side != "SHORT" || p.Stop != 59.0 {
		t.Fatalf("position view: %+v", p)
	}
}

func TestTradesEndpoint(t *testing.T) {
	ts, database, _ := newTestAPIServer(t)

	closed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{5, -2, 9} {
		err := database.InsertTrade(db.Trade{
			ID: "t" + string(rune('a'+i)), Symbol: "BTCUSDT", Side: "LONG",
			Qty: 1, Entry: 100, Exit: 100 + pnl, PnL: pnl, Leverage: 20,
			Reason: "trailing", OpenedAt: closed.Add(-time.Hour),
			ClosedAt: closed.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
	}

	var resp struct {
		Trades []db.Trade `json:"trades"`
		Count  int        `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/api/trades?limit=2", &resp); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if resp.Count != 2 || len(resp.Trades) != 2 {
		t.Fatalf("count=%d trades=%d, expected 2", resp.Count, len(resp.Trades))
	}
	if resp.Trades[0].ID != "tc" {
		t.Fatalf("first trade=%s, expected newest", resp.Trades[0].ID)
	}

	if code := getJSON(t, ts.URL+"/api/trades?limit=zero", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d, expected 400", code)
	}
}
