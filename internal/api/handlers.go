package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Linkarr/internal/logger"
)

const maxQueryLimit = 500

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// handleStats reports aggregate counts: ledger size and per-type event totals.
func (s *RESTServer) handleStats(c *gin.Context) {
	total, err := s.store.Count()
	if err != nil {
		logger.Errorf("Stats: ledger count failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	rows, err := s.db.Query(`
		SELECT event_type, COUNT(*)
		FROM events
		GROUP BY event_type
	`)
	if err != nil {
		logger.Errorf("Stats: event counts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	defer rows.Close()

	eventCounts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan events"})
			return
		}
		eventCounts[eventType] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"total_imports": total,
		"events":        eventCounts,
	})
}

// handleRecentImports returns the newest ledger entries.
func (s *RESTServer) handleRecentImports(c *gin.Context) {
	entries, err := s.store.Recent(queryLimit(c, 50))
	if err != nil {
		logger.Errorf("Recent imports query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": entries, "count": len(entries)})
}

type eventRow struct {
	ID            int64     `json:"id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	EventData     string    `json:"event_data"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleEvents returns persisted events, newest first, optionally filtered
// by ?type=.
func (s *RESTServer) handleEvents(c *gin.Context) {
	limit := queryLimit(c, 100)
	eventType := c.Query("type")

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, created_at
		FROM events
	`
	args := []interface{}{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logger.Errorf("Events query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	defer rows.Close()

	events := make([]eventRow, 0, limit)
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan events"})
			return
		}
		events = append(events, e)
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// handleRescan kicks off a watch folder walk in the background.
func (s *RESTServer) handleRescan(c *gin.Context) {
	if s.rescanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rescan not available"})
		return
	}
	go s.rescanner.Rescan("api")
	c.JSON(http.StatusAccepted, gin.H{"status": "rescan started"})
}

// handleJanitorRun runs a maintenance pass synchronously and reports what
// it did.
func (s *RESTServer) handleJanitorRun(c *gin.Context) {
	if s.janitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "janitor not available"})
		return
	}
	stats := s.janitor.Run()
	c.JSON(http.StatusOK, gin.H{"status": "completed", "stats": stats})
}
