package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{
		"meta":   s.Meta,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.Risk != nil {
		resp["balance"] = s.Risk.Balance()
		resp["open_positions"] = s.Risk.Count()
		resp["slots_free"] = s.Risk.SlotsFree()
	}
	if s.Breaker != nil {
		resp["breaker"] = s.Breaker.State()
	}
	if s.Scanner != nil {
		resp["universe_size"] = s.Scanner.UniverseSize()
		resp["shortlist"] = s.Scanner.Shortlist()
	}
	c.JSON(http.StatusOK, resp)
}

type positionView struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Qty           float64 `json:"qty"`
	Entry         float64 `json:"entry_price"`
	Leverage      int     `json:"leverage"`
	Stop          float64 `json:"stop_price"`
	HighWaterMark float64 `json:"high_water_mark"`
	MaxROE        float64 `json:"max_roe"`
	OpenedAt      string  `json:"opened_at"`
}

func (s *Server) getPositions(c *gin.Context) {
	if s.Risk == nil {
		c.JSON(http.StatusOK, []positionView{})
		return
	}
	snapshot := s.Risk.Snapshot()
	out := make([]positionView, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, positionView{
			ID:            p.ID,
			Symbol:        p.Symbol,
			Side:          string(p.Side),
			Qty:           p.Qty,
			Entry:         p.Entry,
			Leverage:      p.Leverage,
			Stop:          p.Stop,
			HighWaterMark: p.HighWaterMark,
			MaxROE:        p.ExitState().MaxROE(),
			OpenedAt:      p.OpenedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTrades(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []any{}})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	trades, err := s.DB.ListTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}
