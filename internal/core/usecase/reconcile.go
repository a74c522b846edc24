package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/augment"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
)

// ReconcileUseCase back-fills derived fields on stored entries. It only ever
// adds keys that are absent and never calls the classifier.
type ReconcileUseCase struct {
	store       ports.ReconcileStore
	lock        ports.JobLock
	derivations []augment.Derivation
	metrics     ports.ReconcileMetrics
	logger      *slog.Logger
}

// NewReconcileUseCase builds the job. lock and metrics may be nil.
func NewReconcileUseCase(
	store ports.ReconcileStore,
	lock ports.JobLock,
	derivations []augment.Derivation,
	metrics ports.ReconcileMetrics,
	logger *slog.Logger,
) *ReconcileUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileUseCase{
		store:       store,
		lock:        lock,
		derivations: derivations,
		metrics:     metrics,
		logger:      logger.With("component", "reconcile"),
	}
}

func (uc *ReconcileUseCase) Run(ctx context.Context) (domain.ReconcileReport, error) {
	started := time.Now()
	report, err := uc.run(ctx)
	if uc.metrics != nil && !errors.Is(err, domain.ErrJobRunning) {
		uc.metrics.ObserveReconcile(report, time.Since(started), err)
	}
	if err != nil {
		return report, err
	}
	uc.logger.Info("reconcile_finished",
		"scanned", report.Scanned,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

func (uc *ReconcileUseCase) run(ctx context.Context) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport

	if uc.lock != nil {
		ok, err := uc.lock.TryLock()
		if err != nil {
			return report, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			return report, domain.WrapError(domain.ErrJobRunning, "reconcile", errors.New("another run holds the lock"))
		}
		defer func() {
			if err := uc.lock.Unlock(); err != nil {
				uc.logger.Warn("reconcile_unlock_failed", "error", err)
			}
		}()
	}

	err := uc.store.Scan(ctx, func(entry domain.CatalogueEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		uc.reconcileEntry(ctx, entry, &report)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scan catalogue: %w", err)
	}
	return report, nil
}

func (uc *ReconcileUseCase) reconcileEntry(ctx context.Context, entry domain.CatalogueEntry, report *domain.ReconcileReport) {
	report.Scanned++

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(entry.Record, &doc); err != nil || doc == nil {
		report.Failed++
		uc.logger.Warn("reconcile_entry_unreadable", "entry_id", entry.ID, "error", err)
		return
	}

	var added []derivedField
	for _, d := range uc.derivations {
		if _, has := doc[d.Field]; has {
			continue
		}
		value, ok, err := d.Derive(doc, entry)
		if err != nil {
			report.Failed++
			uc.logger.Warn("reconcile_derive_failed", "entry_id", entry.ID, "field", d.Field, "error", err)
			return
		}
		if !ok {
			continue
		}
		doc[d.Field] = value
		added = append(added, derivedField{name: d.Field, value: value})
	}
	if len(added) == 0 {
		report.Skipped++
		return
	}

	next, err := appendFields(entry.Record, added)
	if err != nil {
		report.Failed++
		uc.logger.Warn("reconcile_encode_failed", "entry_id", entry.ID, "error", err)
		return
	}
	swapped, err := uc.store.UpdateRecord(ctx, entry.ID, entry.Record, next)
	switch {
	case err != nil:
		report.Failed++
		uc.logger.Warn("reconcile_update_failed", "entry_id", entry.ID, "error", err)
	case !swapped:
		// Changed since it was read; the next run sees the new version.
		report.Skipped++
		uc.logger.Debug("reconcile_entry_changed", "entry_id", entry.ID)
	default:
		report.Updated++
		uc.logger.Debug("reconcile_entry_updated", "entry_id", entry.ID, "fields", fieldNames(added))
	}
}

type derivedField struct {
	name  string
	value json.RawMessage
}

func fieldNames(fields []derivedField) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.name)
	}
	return names
}

// appendFields adds members before the closing brace of a JSON object. The
// bytes of the existing members are copied unchanged.
func appendFields(record json.RawMessage, fields []derivedField) (json.RawMessage, error) {
	trimmed := bytes.TrimRight(record, " \t\r\n")
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != '}' {
		return nil, errors.New("record is not a JSON object")
	}
	body := bytes.TrimRight(trimmed[:len(trimmed)-1], " \t\r\n")
	empty := bytes.HasSuffix(body, []byte("{"))

	out := make([]byte, 0, len(record)+64*len(fields))
	out = append(out, body...)
	for i, f := range fields {
		name, err := json.Marshal(f.name)
		if err != nil {
			return nil, fmt.Errorf("encode field name: %w", err)
		}
		if i > 0 || !empty {
			out = append(out, ',')
		}
		out = append(out, name...)
		out = append(out, ':')
		out = append(out, f.value...)
	}
	out = append(out, '}')
	out = append(out, record[len(trimmed):]...)
	return out, nil
}
