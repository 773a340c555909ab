package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
)

// ErrEmptyProposal is returned when the command succeeds without printing anything.
var ErrEmptyProposal = errors.New("process proposer: command produced no output")

// Request is written as JSON to the command's stdin.
type Request struct {
	Query    string           `json:"query"`
	Messages []domain.Message `json:"messages"`
}

// Proposer implements review.Proposer by running a local command.
//
// The query is also exported as WAYPOINT_QUERY. Stdout, trimmed, is the
// proposal; a JSON object with a "response" key is unwrapped.
// Arguments are fixed by configuration and never built from user input.
type Proposer struct {
	cfg Config
}

// NewProposer validates cfg and returns a Proposer.
func NewProposer(cfg Config) (*Proposer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Proposer{cfg: cfg}, nil
}

// Propose runs the command once.
func (p *Proposer) Propose(ctx context.Context, query string, transcript []domain.Message) (string, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(Request{Query: query, Messages: transcript})
	if err != nil {
		return "", fmt.Errorf("process proposer: failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = append(cmd.Environ(), p.env(query)...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("process proposer: %w", ctxErr)
		}
		return "", fmt.Errorf("process proposer: execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseOutput(stdout.String())
}

func (p *Proposer) env(query string) []string {
	keys := make([]string, 0, len(p.cfg.Environment))
	for k := range p.cfg.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+p.cfg.Environment[k])
	}
	return append(env, "WAYPOINT_QUERY="+query)
}

func parseOutput(out string) (string, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return "", ErrEmptyProposal
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var wrapped struct {
			Response *string `json:"response"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Response != nil {
			if *wrapped.Response == "" {
				return "", ErrEmptyProposal
			}
			return *wrapped.Response, nil
		}
	}
	return trimmed, nil
}
