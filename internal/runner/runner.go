// Package runner is a client for the external code execution service.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/exambank/internal/model"
)

// ErrUnavailable is returned when no execution service is configured or the
// service reports that it cannot run code right now.
var ErrUnavailable = errors.New("code runner unavailable")

// DefaultTimeLimit applies when a question carries no time limit.
const DefaultTimeLimit = 2 * time.Second

// Request is a single program execution.
type Request struct {
	Language  string
	Code      string
	Stdin     string
	TimeLimit time.Duration
}

// Result is what the service reported for one execution.
type Result struct {
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	ExitCode int
	TimedOut bool
	Error    string
}

type runRequest struct {
	Language string     `json:"language"`
	Code     string     `json:"code"`
	Stdin    string     `json:"stdin,omitempty"`
	Limits   *runLimits `json:"limits,omitempty"`
}

type runLimits struct {
	WallTimeMs int64 `json:"wallTimeMs"`
}

type runExit struct {
	Code     int  `json:"code"`
	TimedOut bool `json:"timedOut"`
}

type runResponse struct {
	Stdout    string  `json:"stdout"`
	Stderr    string  `json:"stderr"`
	Exit      runExit `json:"exit"`
	ElapsedMs int64   `json:"elapsedMs"`
	Error     string  `json:"error,omitempty"`
}

// Client talks to the execution service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. An empty baseURL yields a client whose calls all fail
// with ErrUnavailable.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an execution service is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Run executes one program.
func (c *Client) Run(ctx context.Context, req Request) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrUnavailable
	}
	limit := req.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}

	body, err := json.Marshal(runRequest{
		Language: req.Language,
		Code:     req.Code,
		Stdin:    req.Stdin,
		Limits:   &runLimits{WallTimeMs: limit.Milliseconds()},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read run response: %w", err)
	}

	var rr runResponse
	decodeErr := json.Unmarshal(data, &rr)

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return Result{}, fmt.Errorf("%w: %s", ErrUnavailable, rr.Error)
	case resp.StatusCode >= 400:
		return Result{}, fmt.Errorf("runner returned status %d: %s", resp.StatusCode, rr.Error)
	case decodeErr != nil:
		return Result{}, fmt.Errorf("decode run response: %w", decodeErr)
	}

	return Result{
		Stdout:   rr.Stdout,
		Stderr:   rr.Stderr,
		Elapsed:  time.Duration(rr.ElapsedMs) * time.Millisecond,
		ExitCode: rr.Exit.Code,
		TimedOut: rr.Exit.TimedOut,
		Error:    rr.Error,
	}, nil
}

// Passed reports whether output matches expected, ignoring surrounding
// whitespace.
func Passed(output, expected string) bool {
	return strings.TrimSpace(output) == strings.TrimSpace(expected)
}

// Evaluate runs code once per test case and reports per-case results. A
// failed execution marks that case as not passed and evaluation continues;
// only ErrUnavailable aborts the run.
func (c *Client) Evaluate(ctx context.Context, code, language string, cases []model.TestCase, limit time.Duration) ([]model.TestCaseResult, error) {
	results := make([]model.TestCaseResult, 0, len(cases))
	for _, tc := range cases {
		res, err := c.Run(ctx, Request{Language: language, Code: code, Stdin: tc.Input, TimeLimit: limit})
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		r := model.TestCaseResult{TestCaseID: tc.ID}
		switch {
		case err != nil:
			r.Error = err.Error()
		case res.TimedOut:
			r.Error = "time limit exceeded"
		case res.Error != "":
			r.Error = res.Error
		default:
			r.Passed = res.ExitCode == 0 && Passed(res.Stdout, tc.ExpectedOutput)
		}
		r.Stdout = res.Stdout
		r.Stderr = res.Stderr
		r.ElapsedMs = res.Elapsed.Milliseconds()
		results = append(results, r)
	}
	return results, nil
}
