package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	// Transient outages keep their category but tell clients to come back.
	if errors.Is(err, domain.ErrTemporary) {
		return http.StatusServiceUnavailable
	}
	switch domain.Category(err) {
	case domain.CategoryInvalidInput, domain.CategoryLowConfidence, domain.CategoryUnknownSubject:
		return http.StatusBadRequest
	case domain.CategoryClassificationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set(categoryHeader, domain.Category(err))
	writeJSON(w, status, errorResponse{
		Error:    domain.UserMessage(err),
		Category: domain.Category(err),
	})
}
