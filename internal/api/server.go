// Package api exposes a read-only HTTP surface over the running engine:
// status, open positions and trade history, plus a websocket feed of
// engine events for dashboards.
package api

import (
	"time"

	"momentum-core/internal/breaker"
	"momentum-core/internal/events"
	"momentum-core/internal/risk"
	"momentum-core/internal/scanner"
	"momentum-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// SystemMeta describes runtime facts that never change after boot.
type SystemMeta struct {
	DryRun    bool   `json:"dry_run"`
	Testnet   bool   `json:"testnet"`
	Timeframe string `json:"timeframe"`
	Version   string `json:"version"`
}

// Server wires HTTP endpoints around the engine's read paths.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	Risk    *risk.Manager
	Breaker *breaker.Breaker
	Scanner *scanner.Scanner
	Meta    SystemMeta

	started time.Time
}

// NewServer builds the router with the full middleware stack.
func NewServer(bus *events.Bus, database *db.Database, riskMgr *risk.Manager, brk *breaker.Breaker, scn *scanner.Scanner, meta SystemMeta) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Bus:     bus,
		DB:      database,
		Risk:    riskMgr,
		Breaker: brk,
		Scanner: scn,
		Meta:    meta,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/trades", s.getTrades)
	}
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
