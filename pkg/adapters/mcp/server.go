package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/graph"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource that exposes the step graph.
const GraphURI = "waypoint://graph"

// ThreadResponse is the structured result of every thread tool.
type ThreadResponse struct {
	ThreadID         string        `json:"thread_id" jsonschema_description:"Identifier to pass back to resume the thread"`
	Status           domain.Status `json:"status" jsonschema_description:"idle, running, suspended or terminal"`
	Response         string        `json:"response" jsonschema_description:"Final response, or N/A while the thread awaits review"`
	ProposedResponse string        `json:"proposed_response,omitempty" jsonschema_description:"Draft produced by the agent for review"`
	Cursor           string        `json:"cursor" jsonschema_description:"Next step to run"`
	History          []string      `json:"history" jsonschema_description:"Steps executed so far"`
}

// Workflow is the part of waypoint.Workflow the MCP server needs.
type Workflow interface {
	Run(ctx context.Context, req waypoint.RunRequest) (*waypoint.Result, error)
	Inspect(ctx context.Context, threadID string) (*waypoint.Result, error)
	Graph() *graph.Graph
}

// Server wraps a Workflow and exposes it as an MCP Server.
type Server struct {
	workflow  Workflow
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(wf Workflow, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		workflow:  wf,
		mcpServer: server.NewMCPServer("waypoint-mcp", waypoint.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	processTool := mcp.NewTool("process_query",
		mcp.WithDescription("Start a review thread for a query, or resume one with the reviewer's answer. "+
			"A new thread stops with status 'suspended' and a proposed_response. "+
			"Call again with thread_id and human_input to finish it; omit human_input to accept the proposal."),
		mcp.WithString("query", mcp.Description("Question to answer. Required when starting a thread.")),
		mcp.WithString("human_input", mcp.Description("Reviewer's replacement for the proposed response (optional)")),
		mcp.WithString("thread_id", mcp.Description("Thread to resume (optional)")),
		mcp.WithOutputSchema[ThreadResponse](),
	)
	s.mcpServer.AddTool(processTool, mcp.NewStructuredToolHandler(s.handleProcessQuery))

	threadTool := mcp.NewTool("get_thread",
		mcp.WithDescription("Read the current state of a thread without advancing it."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread identifier")),
		mcp.WithOutputSchema[ThreadResponse](),
	)
	s.mcpServer.AddTool(threadTool, mcp.NewStructuredToolHandler(s.handleGetThread))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the step graph, including which steps wait for review."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.workflow.Graph().Describe())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("describe failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleProcessQuery(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ThreadResponse, error) {
	req := waypoint.RunRequest{}
	req.Query, _ = args["query"].(string)
	req.HumanInput, _ = args["human_input"].(string)
	req.ThreadID, _ = args["thread_id"].(string)

	if req.Query == "" && req.ThreadID == "" {
		return ThreadResponse{}, errors.New("query is required to start a thread")
	}

	res, err := s.workflow.Run(ctx, req)
	if err != nil {
		var runErr *waypoint.RunError
		if errors.As(err, &runErr) {
			// The thread exists; tell the agent which id to retry.
			s.logger.Warn("MCP process_query failed", "thread_id", runErr.ThreadID, "err", err)
			return ThreadResponse{}, fmt.Errorf("process_query failed (thread_id %s, retry with this thread_id): %w", runErr.ThreadID, err)
		}
		s.logger.Warn("MCP process_query failed", "thread_id", req.ThreadID, "err", err)
		return ThreadResponse{}, fmt.Errorf("process_query failed: %w", err)
	}
	return toResponse(res), nil
}

func (s *Server) handleGetThread(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ThreadResponse, error) {
	threadID, _ := args["thread_id"].(string)
	if threadID == "" {
		return ThreadResponse{}, errors.New("thread_id is required")
	}

	res, err := s.workflow.Inspect(ctx, threadID)
	if err != nil {
		return ThreadResponse{}, fmt.Errorf("get_thread failed: %w", err)
	}
	return toResponse(res), nil
}

func toResponse(res *waypoint.Result) ThreadResponse {
	history := res.Checkpoint.History
	if history == nil {
		history = []string{}
	}
	return ThreadResponse{
		ThreadID:         res.ThreadID,
		Status:           res.Status,
		Response:         res.Response,
		ProposedResponse: res.ProposedResponse,
		Cursor:           res.Checkpoint.Cursor,
		History:          history,
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Step Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.workflow.Graph().Describe())
		if err != nil {
			return nil, fmt.Errorf("failed to describe graph: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
