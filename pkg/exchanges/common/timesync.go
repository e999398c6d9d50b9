package common

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimeSync keeps a running estimate of the venue clock offset so signed
// request timestamps land inside the recv window even when the local
// clock drifts.
type TimeSync struct {
	mu            sync.RWMutex
	getServerTime func() (int64, error)
	offset        int64 // ms, server minus local
	lastSync      time.Time
	every         time.Duration
}

// NewTimeSync builds a syncer over a server-time fetcher.
func NewTimeSync(getServerTime func() (int64, error)) *TimeSync {
	return &TimeSync{
		getServerTime: getServerTime,
		every:         30 * time.Minute,
	}
}

// Start syncs once immediately, then keeps the offset fresh in the
// background until ctx is cancelled. A failed sync keeps the previous
// offset; stale beats wrong-by-reset.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("timesync: initial sync: %v", err)
	}
	go func() {
		ticker := time.NewTicker(ts.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					log.Printf("timesync: %v", err)
				}
			}
		}
	}()
}

// Sync measures the offset once. Half the round trip approximates the
// one-way latency.
func (ts *TimeSync) Sync(_ context.Context) error {
	before := time.Now().UnixMilli()
	serverMS, err := ts.getServerTime()
	if err != nil {
		return err
	}
	after := time.Now().UnixMilli()
	localAtServer := before + (after-before)/2

	ts.mu.Lock()
	ts.offset = serverMS - localAtServer
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	log.Printf("timesync: offset %+dms", serverMS-localAtServer)
	return nil
}

// Now returns the local clock shifted onto venue time, in ms.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the last measured offset in ms; zero before the first
// successful sync.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
