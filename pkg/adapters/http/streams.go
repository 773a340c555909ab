package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans thread events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // ThreadID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for a thread. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe(threadID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[threadID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, threadID)
			}
		}
	}
}

// Broadcast sends msg to every subscriber of the thread. Slow subscribers miss messages.
func (sm *StreamManager) Broadcast(threadID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// Subscribers returns the number of open subscriptions for a thread.
func (sm *StreamManager) Subscribers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

// ThreadEvent is the SSE payload.
type ThreadEvent struct {
	Type      domain.EventType `json:"type"`
	ThreadID  string           `json:"thread_id"`
	Timestamp time.Time        `json:"timestamp"`
	Step      string           `json:"step,omitempty"`
	Cursor    string           `json:"cursor,omitempty"`
	Status    domain.Status    `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Hooks returns lifecycle hooks that broadcast engine events to subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	step := func(_ context.Context, e *domain.StepEvent) {
		ev := ThreadEvent{Type: e.Type, ThreadID: e.ThreadID, Timestamp: e.Timestamp, Step: e.Step}
		if e.Err != nil {
			ev.Error = e.Err.Error()
		}
		sm.publish(ev)
	}
	thread := func(_ context.Context, e *domain.ThreadEvent) {
		sm.publish(ThreadEvent{Type: e.Type, ThreadID: e.ThreadID, Timestamp: e.Timestamp, Cursor: e.Cursor, Status: e.Status})
	}
	return domain.LifecycleHooks{
		OnStepEnter: step,
		OnStepLeave: step,
		OnStepError: step,
		OnSuspend:   thread,
		OnTerminal:  thread,
	}
}

func (sm *StreamManager) publish(ev ThreadEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("SSE: failed to encode event", "err", err)
		return
	}
	sm.Broadcast(ev.ThreadID, string(payload))
}

// SubscribeEvents handles the GET /threads/{threadID}/events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "Streaming not supported"})
		return
	}

	threadID := chi.URLParam(r, "threadID")
	if _, err := s.Workflow.Inspect(r.Context(), threadID); err != nil {
		s.writeError(w, "SubscribeEvents", err)
		return
	}

	ch, cancel := s.Streams.Subscribe(threadID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to thread events", "thread_id", threadID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "thread_id", threadID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
