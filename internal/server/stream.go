package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"overmind/internal/observability"
	"overmind/internal/timeline"
)

const (
	streamBuffer  = 16
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// handleStream upgrades to a websocket and pushes a snapshot on every
// visible timeline change. The first frame is always the current snapshot,
// so a client never renders from nothing.
func (s *Server) handleStream(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream not available"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := c.Request.Context()
	if s.metrics != nil {
		s.metrics.StreamClientConnected(ctx)
		defer s.metrics.StreamClientDisconnected(ctx)
	}

	updates := s.hub.Subscribe(streamBuffer)
	defer s.hub.Unsubscribe(updates)

	// Drain client frames so close handshakes are seen promptly.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.pushSnapshot(ctx, conn, s.store.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clientGone:
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := s.pushSnapshot(ctx, conn, snapshot); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn, snapshot timeline.Snapshot) error {
	var span trace.Span
	if s.tracer != nil {
		_, span = s.tracer.StartSpan(ctx, observability.SpanStreamPush,
			attribute.Int64(observability.AttrSeq, snapshot.LastSeq))
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	err := conn.WriteJSON(snapshot)
	if span != nil {
		if err != nil {
			span.SetAttributes(observability.ErrorAttrs(err)...)
		}
		span.End()
	}
	return err
}
