package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/exambank/internal/model"
)

func mcq() model.BankQuestion {
	return model.BankQuestion{
		ID: "PHY-001", Subject: "Physics", Topic: "Mechanics", Difficulty: model.DifficultyEasy,
		Type: model.BankTypeMCQ, Text: "What is the SI unit of force?",
		MCQ: &model.MCQContent{Options: [4]string{"Newton", "Joule", "Watt", "Pascal"}, CorrectAnswer: "A"},
	}
}

// fakeAPI answers chat completions with content and records the last prompt.
func fakeAPI(t *testing.T, content string, lastPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 && lastPrompt != nil {
				*lastPrompt = req.Messages[0].Content
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/models"):
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   []map[string]any{{"id": "test-model", "object": "model"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, variant string) *Client {
	t.Helper()
	c, err := New(srv.URL+"/v1", "test-key", "test-model", variant)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestExplain(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantAgree bool
		wantKey   string
	}{
		{"agrees", `{"correct_answer": "A", "explanation": "Force is measured in newtons."}`, true, "A"},
		{"disagrees", `{"correct_answer": "b", "explanation": "Joules measure work."}`, false, "B"},
		{"no answer letter", `{"explanation": "Newtons."}`, true, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt string
			c := newClient(t, fakeAPI(t, tt.content, &prompt), "concise")

			got, err := c.Explain(context.Background(), mcq())
			if err != nil {
				t.Fatalf("Explain: %v", err)
			}
			if got.AgreesWithKey != tt.wantAgree {
				t.Errorf("AgreesWithKey = %v, want %v", got.AgreesWithKey, tt.wantAgree)
			}
			if got.CorrectAnswer != tt.wantKey {
				t.Errorf("CorrectAnswer = %q, want %q", got.CorrectAnswer, tt.wantKey)
			}
			if got.QuestionID != "PHY-001" || got.Variant != "concise" {
				t.Errorf("unexpected metadata: %+v", got)
			}
			if !strings.Contains(prompt, "What is the SI unit of force?") || !strings.Contains(prompt, "D) Pascal") {
				t.Errorf("prompt missing question data: %s", prompt)
			}
		})
	}
}

func TestExplainErrors(t *testing.T) {
	t.Run("coding question", func(t *testing.T) {
		c := newClient(t, fakeAPI(t, `{}`, nil), "standard")
		q := model.BankQuestion{ID: "CS-1", Type: model.BankTypeCoding, Coding: &model.CodingContent{}}
		if _, err := c.Explain(context.Background(), q); !errors.Is(err, ErrNotExplainable) {
			t.Errorf("expected ErrNotExplainable, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		c := newClient(t, fakeAPI(t, `not json`, nil), "standard")
		if _, err := c.Explain(context.Background(), mcq()); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("empty explanation", func(t *testing.T) {
		c := newClient(t, fakeAPI(t, `{"correct_answer": "A", "explanation": "  "}`, nil), "standard")
		if _, err := c.Explain(context.Background(), mcq()); err == nil {
			t.Error("expected error for empty explanation")
		}
	})
}

func TestUnknownVariantFallsBack(t *testing.T) {
	c := newClient(t, fakeAPI(t, `{}`, nil), "verbose")
	if c.variant != "standard" {
		t.Errorf("variant = %q, want standard", c.variant)
	}
}

func TestPingAndEnabled(t *testing.T) {
	c := newClient(t, fakeAPI(t, `{}`, nil), "standard")
	if !c.Enabled() {
		t.Error("expected client to be enabled")
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Error("nil client should be disabled")
	}
}
