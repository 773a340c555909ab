package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/config"
	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/adapters/file"
	"github.com/aretw0/waypoint/pkg/adapters/process"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LogConfig{Level: "warn", JSON: true}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestBuild_Memory(t *testing.T) {
	app := build(t, config.Default())

	res, err := app.Workflow.Run(context.Background(), waypoint.RunRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)

	threads, err := app.Workflow.Threads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{res.ThreadID}, threads)
}

func TestBuild_FileStoreSurvivesRebuild(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Kind = config.StoreFile
	cfg.Store.File.Path = t.TempDir()

	first := build(t, cfg)
	started, err := first.Workflow.Run(context.Background(), waypoint.RunRequest{Query: "persist me"})
	require.NoError(t, err)

	second := build(t, cfg)
	res, err := second.Workflow.Run(context.Background(), waypoint.RunRequest{
		ThreadID:   started.ThreadID,
		HumanInput: "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)
	assert.Equal(t, "approved", res.Response)
}

func TestBuild_RedisWithDistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Store.Kind = config.StoreRedis
	cfg.Store.Redis.URL = "redis://" + mr.Addr()
	cfg.Store.Redis.Prefix = "test:"
	cfg.Lock.Distributed = true
	cfg.Lock.TTL = time.Second

	app := build(t, cfg)
	res, err := app.Workflow.Run(context.Background(), waypoint.RunRequest{Query: "over redis"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
	assert.True(t, mr.Exists("test:thread:"+res.ThreadID))
}

func TestBuild_EncryptedStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Kind = config.StoreFile
	cfg.Store.File.Path = dir
	cfg.Store.Encryption.Key = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	app := build(t, cfg)
	res, err := app.Workflow.Run(context.Background(), waypoint.RunRequest{Query: "secret plans"})
	require.NoError(t, err)

	raw, err := file.New(dir).Load(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.Contains(t, raw.State, middleware.EncryptedField)
	assert.NotContains(t, raw.State, "query")

	inspected, err := app.Workflow.Inspect(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "secret plans", inspected.Checkpoint.State["query"])
}

func TestBuild_RejectsBadRedactPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Redact = []string{"("}

	_, err := Build(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestBuild_ExternalProposerConfigIsValidated(t *testing.T) {
	cfg := config.Default()
	cfg.Proposer = &process.Config{}

	_, err := Build(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestApp_HTTPHandlerRedactsAndExposesMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Redact = []string{"^query$"}
	app := build(t, cfg)

	srv := httptest.NewServer(app.HTTPHandler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/process-query", "application/json", strings.NewReader(`{"query":"my password"}`))
	require.NoError(t, err)
	var started struct {
		ThreadID string `json:"thread_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/threads/" + started.ThreadID)
	require.NoError(t, err)
	var view struct {
		State map[string]any `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, middleware.Mask, view.State["query"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Contains(t, body.String(), "waypoint_step_runs_total")
	assert.Contains(t, body.String(), "go_goroutines")
}
