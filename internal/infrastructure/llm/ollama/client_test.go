package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

const roseReply = `{"candidate_identifications":[{"identified_name":"Rose","scientific_name":"Rosa","confidence":0.9}],` +
	`"identified_name":"Rose","scientific_name":"Rosa","confidence":0.9,"local_names":[],"date_added":""}`

func TestClassifySendsImageAndDecodesReply(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": roseReply, "done": true})
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "llava"))
	classifier.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	result, err := classifier.Classify(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.IdentifiedName != "Rose" || result.DateAdded != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected result %+v", result)
	}
	if payload["model"] != "llava" || payload["format"] != "json" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	images, _ := payload["images"].([]any)
	if len(images) != 1 || images[0] != base64.StdEncoding.EncodeToString([]byte("img")) {
		t.Fatalf("expected base64 image, got %v", payload["images"])
	}
}

func TestClassifyMarksRetryableStatusTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClassifier(New(server.URL, "llava")).Classify(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestClassifyPermanentStatusIsClassificationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClassifier(New(server.URL, "missing")).Classify(context.Background(), []byte("img"), "image/jpeg")
	if errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary: %v", err)
	}
	if domain.Category(err) != domain.CategoryClassificationFailed {
		t.Fatalf("expected ClassificationFailed, got %s (%v)", domain.Category(err), err)
	}
}

func TestClassifyProseReplyIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "That looks like a rose.", "done": true})
	}))
	defer server.Close()

	_, err := NewClassifier(New(server.URL, "llava")).Classify(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}
