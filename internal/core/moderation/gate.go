package moderation

import "github.com/kirillkom/plant-catalogue/internal/core/domain"

// DefaultMinConfidence is the lowest overall confidence accepted into the catalogue.
const DefaultMinConfidence = 0.6

// Gate applies the acceptance policy to a parsed classification result.
type Gate struct {
	minConfidence float64
}

func NewGate(minConfidence float64) Gate {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	return Gate{minConfidence: minConfidence}
}

func (g Gate) MinConfidence() float64 {
	return g.minConfidence
}

// Moderate returns nil when the result is accepted, or a *domain.Rejection.
// The confidence and "unknown" checks are independent: a named result can still
// carry sub-threshold confidence.
func (g Gate) Moderate(result domain.ClassificationResult) error {
	if result.Confidence < g.minConfidence {
		return &domain.Rejection{
			Reason:        domain.ErrLowConfidence,
			Confidence:    result.Confidence,
			MinConfidence: g.minConfidence,
		}
	}
	if result.IsUnknown() {
		return &domain.Rejection{
			Reason:        domain.ErrUnknownSubject,
			Confidence:    result.Confidence,
			MinConfidence: g.minConfidence,
		}
	}
	return nil
}
