// Package llm holds what the classifier backends share: HTTP failure
// classification and the retrying decorator composed at bootstrap.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

// HTTPStatusError is a non-2xx reply from a model endpoint.
type HTTPStatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "model status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Provider, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Provider, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// IsRetryableStatus reports HTTP statuses worth another attempt.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// WrapTransportError turns a failed model call into a domain error. Every result
// matches ErrClassification; transient transport failures also match ErrTemporary.
func WrapTransportError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrClassification) {
		return err
	}
	if domain.IsKind(err, domain.ErrTemporary) || isTransient(err) {
		return domain.TemporaryClassification(operation, err)
	}
	return domain.WrapError(domain.ErrClassification, operation, err)
}
