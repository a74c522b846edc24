package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func replyWithText(text string) map[string]any {
	return map[string]any{
		"status": "completed",
		"output": []any{
			map[string]any{"type": "reasoning", "content": []any{}},
			map[string]any{
				"type": "message",
				"content": []any{
					map[string]any{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *Classifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClassifier(New(server.URL, "sk-test", "gpt-4o"))
	c.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	return c
}

func TestClassifySendsInlineImage(t *testing.T) {
	var captured responsesRequest
	var auth string
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(replyWithText("```json\n" +
			`{"candidate_identifications":[{"identified_name":"Tulsi","scientific_name":"Ocimum tenuiflorum","confidence":0.92}],` +
			`"identified_name":"Tulsi","scientific_name":"Ocimum tenuiflorum","confidence":0.92}` + "\n```"))
	})

	result, err := classifier.Classify(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.ScientificName != "Ocimum tenuiflorum" || result.DateAdded != "2026-05-06T07:08:09Z" {
		t.Fatalf("unexpected result %+v", result)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if captured.Model != "gpt-4o" || len(captured.Input) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	user := captured.Input[1].Content
	if len(user) != 2 || user[1].Type != "input_image" || !strings.HasPrefix(user[1].ImageURL, "data:image/jpeg;base64,") {
		t.Fatalf("expected inline data uri image, got %+v", user)
	}
	if captured.Text.Format.Type != "json_object" {
		t.Fatalf("expected json_object format, got %q", captured.Text.Format.Type)
	}
}

func TestClassifyRejectsExtraCandidates(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(replyWithText(`{"candidate_identifications":[` +
			`{"identified_name":"A","scientific_name":"A","confidence":0.9},` +
			`{"identified_name":"B","scientific_name":"B","confidence":0.5},` +
			`{"identified_name":"C","scientific_name":"C","confidence":0.3},` +
			`{"identified_name":"D","scientific_name":"D","confidence":0.1}],` +
			`"identified_name":"A","scientific_name":"A","confidence":0.9}`))
	})

	_, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestClassifyRefusalIsMalformed(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []any{map[string]any{
				"type":    "message",
				"content": []any{map[string]any{"type": "refusal", "refusal": "cannot help"}},
			}},
		})
	})

	_, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestClassifyRateLimitIsTemporary(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestClassifyUnreachableServiceIsClassificationFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()
	classifier := NewClassifier(New(baseURL, "sk-test", "gpt-4o"))

	_, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected retryable failure, got %v", err)
	}
	if got := domain.Category(err); got != domain.CategoryClassificationFailed {
		t.Fatalf("category = %s, want %s (%v)", got, domain.CategoryClassificationFailed, err)
	}
}

func TestClassifyUnauthorizedIsClassificationFailure(t *testing.T) {
	classifier := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if errors.Is(err, domain.ErrTemporary) || domain.Category(err) != domain.CategoryClassificationFailed {
		t.Fatalf("expected permanent classification failure, got %v", err)
	}
}
