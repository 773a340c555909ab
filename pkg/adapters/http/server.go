package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/logging"
	diagram "github.com/aretw0/waypoint/internal/presentation/graph"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/graph"
	"github.com/aretw0/waypoint/pkg/persistence/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Workflow is the part of waypoint.Workflow the server needs.
type Workflow interface {
	Run(ctx context.Context, req waypoint.RunRequest) (*waypoint.Result, error)
	Inspect(ctx context.Context, threadID string) (*waypoint.Result, error)
	Threads(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, threadID string) error
	Graph() *graph.Graph
}

// Server exposes a Workflow over HTTP.
type Server struct {
	Workflow Workflow
	Streams  *StreamManager

	redactor *middleware.Redactor
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose hooks are registered on the workflow.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithRedactor masks matching state keys in thread views.
func WithRedactor(r *middleware.Redactor) Option {
	return func(s *Server) {
		s.redactor = r
	}
}

// WithMetrics exposes the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates a new HTTP handler for the workflow.
func NewHandler(wf Workflow, opts ...Option) http.Handler {
	s := &Server{
		Workflow: wf,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/", s.Root)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	r.Post("/process-query", s.ProcessQuery)
	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Get("/{threadID}", s.GetThread)
		r.Delete("/{threadID}", s.DeleteThread)
		r.Get("/{threadID}/events", s.SubscribeEvents)
		r.Get("/{threadID}/graph", s.GetThreadGraph)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProcessQueryRequest is the body of POST /process-query.
type ProcessQueryRequest struct {
	Query      string `json:"query"`
	HumanInput string `json:"human_input,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// ProcessQueryResponse is returned by POST /process-query.
type ProcessQueryResponse struct {
	Response         string        `json:"response"`
	ThreadID         string        `json:"thread_id"`
	Status           domain.Status `json:"status"`
	ProposedResponse string        `json:"proposed_response,omitempty"`
}

// ThreadView is the representation of a thread returned by GET /threads/{id}.
type ThreadView struct {
	ThreadID         string         `json:"thread_id"`
	Status           domain.Status  `json:"status"`
	Cursor           string         `json:"cursor"`
	Version          int64          `json:"version"`
	Response         string         `json:"response"`
	ProposedResponse string         `json:"proposed_response,omitempty"`
	History          []string       `json:"history"`
	State            map[string]any `json:"state"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
	// ThreadID is set when the failed request created or touched a thread that can be retried.
	ThreadID string `json:"thread_id,omitempty"`
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Agent API is running"})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "waypoint-http",
		"version": waypoint.Version,
	})
}

// GetGraph handles the GET /graph request.
// With ?format=mermaid it returns a flowchart instead of JSON.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	steps := s.Workflow.Graph().Describe()
	if r.URL.Query().Get("format") == "mermaid" {
		writeMermaid(w, diagram.Mermaid(steps, nil))
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

// GetThreadGraph handles GET /threads/{threadID}/graph, a flowchart with the thread's path highlighted.
func (s *Server) GetThreadGraph(w http.ResponseWriter, r *http.Request) {
	res, err := s.Workflow.Inspect(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeError(w, "GetThreadGraph", err)
		return
	}
	writeMermaid(w, diagram.Mermaid(s.Workflow.Graph().Describe(), diagram.OverlayFor(res.Checkpoint)))
}

func writeMermaid(w http.ResponseWriter, chart string) {
	w.Header().Set("Content-Type", "text/vnd.mermaid; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(chart))
}

// ProcessQuery handles the POST /process-query request.
func (s *Server) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("ProcessQuery: Invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "Invalid request body"})
		return
	}
	// encoding/json would replace invalid sequences with U+FFFD, so check before decoding.
	if !utf8.Valid(raw) {
		s.writeError(w, "ProcessQuery", waypoint.ErrInvalidUTF8)
		return
	}

	var body ProcessQueryRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		s.logger.Warn("ProcessQuery: Invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "Invalid request body"})
		return
	}
	if body.Query == "" && body.ThreadID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "query is required to start a thread"})
		return
	}

	res, err := s.Workflow.Run(r.Context(), waypoint.RunRequest{
		Query:      body.Query,
		HumanInput: body.HumanInput,
		ThreadID:   body.ThreadID,
	})
	if err != nil {
		s.writeError(w, "ProcessQuery", err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessQueryResponse{
		Response:         res.Response,
		ThreadID:         res.ThreadID,
		Status:           res.Status,
		ProposedResponse: res.ProposedResponse,
	})
}

// ListThreads handles the GET /threads request.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Workflow.Threads(r.Context())
	if err != nil {
		s.writeError(w, "ListThreads", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"threads": ids})
}

// GetThread handles the GET /threads/{threadID} request.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	res, err := s.Workflow.Inspect(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeError(w, "GetThread", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(res))
}

// DeleteThread handles the DELETE /threads/{threadID} request.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.Workflow.Delete(r.Context(), chi.URLParam(r, "threadID")); err != nil {
		s.writeError(w, "DeleteThread", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) view(res *waypoint.Result) ThreadView {
	cp := s.redactor.Checkpoint(res.Checkpoint)
	history := cp.History
	if history == nil {
		history = []string{}
	}
	return ThreadView{
		ThreadID:         res.ThreadID,
		Status:           res.Status,
		Cursor:           cp.Cursor,
		Version:          cp.Version,
		Response:         res.Response,
		ProposedResponse: res.ProposedResponse,
		History:          history,
		State:            cp.State,
		CreatedAt:        cp.CreatedAt.Format(timeFormat),
		UpdatedAt:        cp.UpdatedAt.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, waypoint.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentAccess), errors.Is(err, domain.ErrThreadExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err, "status", status)
	}
	resp := ErrorResponse{Detail: fmt.Sprintf("Error processing request: %v", err)}
	var runErr *waypoint.RunError
	if errors.As(err, &runErr) {
		resp.ThreadID = runErr.ThreadID
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
