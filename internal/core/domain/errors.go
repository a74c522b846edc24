package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
	ErrNotFound     = errors.New("not found")
	ErrJobRunning   = errors.New("job already running")

	ErrStorageWrite      = errors.New("storage write failed")
	ErrClassification    = errors.New("classification failed")
	ErrMalformedResponse = errors.New("malformed classifier response")
	ErrContractViolation = errors.New("classifier contract violation")
	ErrLowConfidence     = errors.New("low confidence")
	ErrUnknownSubject    = errors.New("unknown subject")
	ErrCatalogueWrite    = errors.New("catalogue write failed")
)

// Failure categories reported to callers.
const (
	CategoryInvalidInput         = "InvalidInput"
	CategoryStorageWriteFailed   = "StorageWriteFailed"
	CategoryClassificationFailed = "ClassificationFailed"
	CategoryMalformedResponse    = "MalformedResponse"
	CategoryContractViolation    = "ContractViolation"
	CategoryLowConfidence        = "LowConfidence"
	CategoryUnknownSubject       = "UnknownSubject"
	CategoryCatalogueWriteFailed = "CatalogueWriteFailed"
	CategoryTemporary            = "TemporaryFailure"
	CategoryInternal             = "InternalError"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// TemporaryClassification marks a classifier outage worth retrying. It matches
// both ErrTemporary and ErrClassification.
func TemporaryClassification(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w: %w", operation, ErrTemporary, ErrClassification, err)
}

// MalformedResponse marks a classifier reply that is not a single JSON object.
// It also matches ErrClassification.
func MalformedResponse(detail error) error {
	return fmt.Errorf("%w: %w: %w", ErrClassification, ErrMalformedResponse, detail)
}

// ContractViolation marks a syntactically valid reply that breaks the result schema.
// It also matches ErrClassification.
func ContractViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrClassification, ErrContractViolation, fmt.Sprintf(format, args...))
}

// Rejection is the negative verdict of the moderation gate. It is not a system fault.
type Rejection struct {
	Reason        error
	Confidence    float64
	MinConfidence float64
}

func (r *Rejection) Error() string {
	if errors.Is(r.Reason, ErrLowConfidence) {
		return fmt.Sprintf(
			"Unable to identify a plant in this image (confidence %d%%, minimum %d%% required). Please upload a clear photo of a plant.",
			percent(r.Confidence), percent(r.MinConfidence),
		)
	}
	return "No plant detected in this image. Please upload a clear photo of a plant."
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// Category maps an error to the failure category reported to callers. Malformed
// replies, contract violations and transient classifier outages all surface as
// ClassificationFailed.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLowConfidence):
		return CategoryLowConfidence
	case errors.Is(err, ErrUnknownSubject):
		return CategoryUnknownSubject
	case errors.Is(err, ErrInvalidInput):
		return CategoryInvalidInput
	case errors.Is(err, ErrStorageWrite):
		return CategoryStorageWriteFailed
	case errors.Is(err, ErrCatalogueWrite):
		return CategoryCatalogueWriteFailed
	case errors.Is(err, ErrClassification):
		return CategoryClassificationFailed
	case errors.Is(err, ErrTemporary):
		return CategoryTemporary
	default:
		return CategoryInternal
	}
}

// Diagnostic is Category refined for logs: it keeps schema drift and transient
// outages distinguishable from other classifier failures.
func Diagnostic(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return CategoryMalformedResponse
	case errors.Is(err, ErrContractViolation):
		return CategoryContractViolation
	case errors.Is(err, ErrTemporary):
		return CategoryTemporary
	default:
		return Category(err)
	}
}

// UserMessage returns a caller-facing message that never exposes service internals.
func UserMessage(err error) string {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Error()
	}

	switch Category(err) {
	case CategoryInvalidInput:
		return "The upload must be a single non-empty image (jpeg, png, gif or webp)."
	case CategoryStorageWriteFailed:
		return "The image could not be stored. Please try again later."
	case CategoryCatalogueWriteFailed:
		return "The identification could not be saved. Please try again later."
	case CategoryTemporary:
		return "The identification service is temporarily unavailable. Please retry in a moment."
	case CategoryClassificationFailed:
		if errors.Is(err, ErrTemporary) {
			return "The identification service is temporarily unavailable. Please retry in a moment."
		}
		return "The identification service failed to process this image. Please retry."
	default:
		return "Internal error."
	}
}
