package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"microloan/go-backend/internal/domains/contracts"
)

const streamHeartbeat = 20 * time.Second

// handleRPCStream serves loan notifications as server-sent events. Clients
// resume with ?cursor=<seq> or the Last-Event-ID header.
func (s *Server) handleRPCStream(w http.ResponseWriter, r *http.Request) {
	if !s.preflight(w, r, http.MethodGet, true) {
		return
	}
	if s.service == nil {
		http.Error(w, "service is not initialized", http.StatusServiceUnavailable)
		return
	}
	cursor, err := streamCursor(r)
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	release, ok := s.streams.take(callerKey(r, s.extractRPCToken(r)))
	if !ok {
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	backlog, live, unsubscribe := s.service.SubscribeNotifications(cursor)
	defer unsubscribe()
	for _, evt := range backlog {
		if writeSSEEvent(w, evt) != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-live:
			if !open || writeSSEEvent(w, evt) != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func streamCursor(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return cursor, nil
}

type sseParams struct {
	Version   int       `json:"version"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type sseNotification struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  sseParams `json:"params"`
}

func writeSSEEvent(w http.ResponseWriter, evt contracts.NotificationEvent) error {
	data, err := json.Marshal(sseNotification{
		JSONRPC: "2.0",
		Method:  evt.Method,
		Params: sseParams{
			Version:   rpcNotificationVersion,
			Seq:       evt.Seq,
			Timestamp: evt.Timestamp,
			Payload:   evt.Payload,
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", evt.Seq, data)
	return err
}
