package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"overmind/internal/timeline"
)

const maxEventBodyBytes = 1 << 20

type injectResponse struct {
	Outcome string `json:"outcome"`
	Version uint64 `json:"version"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Events    int64     `json:"last_seq"`
}

// handleTimeline serves the merged cross-run projection. Responses are cached
// by store version, so idle polling never re-marshals the snapshot.
func (s *Server) handleTimeline(c *gin.Context) {
	body, cached, err := s.cache.snapshotJSON(s.store)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode snapshot"})
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSnapshot(c.Request.Context(), cached)
	}
	c.Data(http.StatusOK, "application/json", body)
}

// handleRuns serves per-run summaries without the merged timeline.
func (s *Server) handleRuns(c *gin.Context) {
	snapshot := s.store.Snapshot()
	if s.metrics != nil {
		s.metrics.RecordSnapshot(c.Request.Context(), false)
	}
	c.JSON(http.StatusOK, gin.H{
		"active_run_id": snapshot.ActiveRunID,
		"runs":          snapshot.Runs,
	})
}

// handleInjectEvent feeds raw events through the engine. The body is one
// record or a JSON array of records. The engine is total, so every
// well-formed request is accepted; the outcomes in the response tell the
// caller what the reduction did with each record.
func (s *Server) handleInjectEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	records := splitBatch(body)
	if len(records) == 1 {
		c.JSON(http.StatusAccepted, injectResponse{
			Outcome: s.applyRecord(c, records[0]),
			Version: s.store.Version(),
		})
		return
	}

	outcomes := make([]string, 0, len(records))
	for _, record := range records {
		outcomes = append(outcomes, s.applyRecord(c, record))
	}
	c.JSON(http.StatusAccepted, gin.H{
		"outcomes": outcomes,
		"version":  s.store.Version(),
	})
}

// splitBatch returns the individual records of a JSON array body, or the
// body itself as a single record.
func splitBatch(body []byte) [][]byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return [][]byte{body}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return [][]byte{body}
	}
	records := make([][]byte, 0, len(raw))
	for _, record := range raw {
		records = append(records, []byte(record))
	}
	return records
}

func (s *Server) applyRecord(c *gin.Context, record []byte) string {
	ev, ok := timeline.Decode(record)
	if !ok {
		return "malformed"
	}

	start := time.Now()
	outcome, changed := s.store.Apply(ev)
	if s.metrics != nil {
		s.metrics.RecordEvent(c.Request.Context(), outcome, time.Since(start))
	}
	if changed && s.hub != nil {
		s.hub.Publish(s.store.Snapshot())
	}
	return outcome.String()
}

// handleReset wipes the projection back to its initial state.
func (s *Server) handleReset(c *gin.Context) {
	s.store.Reset()
	if s.hub != nil {
		s.hub.Publish(s.store.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"version": s.store.Version()})
}

func (s *Server) handleHealth(c *gin.Context) {
	snapshot := s.store.Snapshot()
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
		Events:    snapshot.LastSeq,
	})
}
