package llm

import (
	"context"
	"errors"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/resilience"
)

const classifyOperation = "llm.classify"

type resilientClassifier struct {
	inner    ports.PlantClassifier
	executor *resilience.Executor
}

// WithResilience retries temporary classifier failures and guards the backend
// with a circuit breaker. Malformed replies and contract violations are final
// and are not counted against the breaker.
func WithResilience(inner ports.PlantClassifier, executor *resilience.Executor) ports.PlantClassifier {
	if executor == nil {
		return inner
	}
	return &resilientClassifier{inner: inner, executor: executor}
}

func (c *resilientClassifier) Classify(ctx context.Context, image []byte, mediaType string) (domain.ClassificationResult, error) {
	result, err := resilience.Run(ctx, c.executor, classifyOperation, func(ctx context.Context) (domain.ClassificationResult, error) {
		return c.inner.Classify(ctx, image, mediaType)
	}, classifyError)
	if err != nil && resilience.IsCircuitOpen(err) {
		return domain.ClassificationResult{}, domain.TemporaryClassification(classifyOperation, err)
	}
	return result, err
}

func classifyError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	temporary := errors.Is(err, domain.ErrTemporary)
	return resilience.ErrorClassification{
		Retryable:     temporary,
		RecordFailure: temporary,
	}
}
