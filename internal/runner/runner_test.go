package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/exambank/internal/model"
)

// echoServer answers every run with the request's stdin upper-cased, or a
// timeout when stdin is "loop".
func echoServer(t *testing.T, got *[]runRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req runRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if got != nil {
			*got = append(*got, req)
		}
		resp := runResponse{Stdout: strings.ToUpper(req.Stdin) + "\n", ElapsedMs: 12}
		if req.Stdin == "loop" {
			resp = runResponse{Exit: runExit{Code: 137, TimedOut: true}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	var got []runRequest
	srv := echoServer(t, &got)
	c := New(srv.URL+"/", time.Second)

	res, err := c.Run(context.Background(), Request{Language: "python", Code: "print(input().upper())", Stdin: "hi", TimeLimit: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "HI\n", res.Stdout)
	assert.Equal(t, 12*time.Millisecond, res.Elapsed)
	require.Len(t, got, 1)
	assert.Equal(t, "python", got[0].Language)
	assert.Equal(t, int64(3000), got[0].Limits.WallTimeMs)
}

func TestRunDefaultLimit(t *testing.T) {
	var got []runRequest
	srv := echoServer(t, &got)

	_, err := New(srv.URL, 0).Run(context.Background(), Request{Language: "python", Code: "x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, DefaultTimeLimit.Milliseconds(), got[0].Limits.WallTimeMs)
}

func TestRunNotConfigured(t *testing.T) {
	c := New("", time.Second)
	assert.False(t, c.Enabled())
	_, err := c.Run(context.Background(), Request{Code: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)

	var nilClient *Client
	_, err = nilClient.Run(context.Background(), Request{Code: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRunServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(runResponse{Error: "sandbox_unavailable"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Run(context.Background(), Request{Code: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRunBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(runResponse{Error: "unsupported_language"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Run(context.Background(), Request{Language: "cobol", Code: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "unsupported_language")
}

func TestEvaluate(t *testing.T) {
	srv := echoServer(t, nil)
	c := New(srv.URL, time.Second)

	cases := []model.TestCase{
		{ID: "tc-1", Input: "abc", ExpectedOutput: "ABC"},
		{ID: "tc-2", Input: "abc", ExpectedOutput: "abc"},
		{ID: "tc-3", Input: "loop", ExpectedOutput: ""},
	}
	results, err := c.Evaluate(context.Background(), "code", "python", cases, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "tc-1", results[0].TestCaseID)
	assert.True(t, results[0].Passed, "trailing newline is ignored")
	assert.False(t, results[1].Passed)
	assert.False(t, results[2].Passed)
	assert.Equal(t, "time limit exceeded", results[2].Error)
}

func TestEvaluateUnavailable(t *testing.T) {
	_, err := New("", time.Second).Evaluate(context.Background(), "code", "python", []model.TestCase{{ID: "a"}}, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed("42\n", "42"))
	assert.True(t, Passed("  a b \r\n", "a b"))
	assert.False(t, Passed("a  b", "a b"))
}
