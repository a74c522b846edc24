package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrapTransportError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		temporary bool
	}{
		{"service unavailable", &HTTPStatusError{Provider: "openai", Operation: "classify", StatusCode: http.StatusServiceUnavailable}, true},
		{"rate limited", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &HTTPStatusError{StatusCode: http.StatusUnauthorized}, false},
		{"network", timeoutErr{}, true},
		{"deadline", context.DeadlineExceeded, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		err := WrapTransportError("classify", tc.err)
		if got := errors.Is(err, domain.ErrTemporary); got != tc.temporary {
			t.Fatalf("%s: temporary = %v, want %v (%v)", tc.name, got, tc.temporary, err)
		}
		if !errors.Is(err, domain.ErrClassification) {
			t.Fatalf("%s: expected classification failure, got %v", tc.name, err)
		}
		if got := domain.Category(err); got != domain.CategoryClassificationFailed {
			t.Fatalf("%s: category = %s, want %s", tc.name, got, domain.CategoryClassificationFailed)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: cause lost: %v", tc.name, err)
		}
	}
}

func TestWrapTransportErrorKeepsDomainErrors(t *testing.T) {
	malformed := domain.MalformedResponse(errors.New("prose"))
	if got := WrapTransportError("classify", malformed); got != malformed {
		t.Fatalf("expected domain error untouched, got %v", got)
	}
}
