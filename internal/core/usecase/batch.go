package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
)

var batchExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

type BatchOptions struct {
	// Limit caps the number of files submitted; 0 means no cap.
	Limit int
	// RatePerSecond paces submissions; 0 means unpaced.
	RatePerSecond float64
}

type BatchItem struct {
	File           string  `json:"file"`
	Outcome        string  `json:"outcome"`
	IdentifiedName string  `json:"identified_name,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Message        string  `json:"message,omitempty"`
}

type BatchIdentifyUseCase struct {
	ingestor ports.PlantIngestor
	logger   *slog.Logger
}

func NewBatchIdentifyUseCase(ingestor ports.PlantIngestor, logger *slog.Logger) *BatchIdentifyUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchIdentifyUseCase{ingestor: ingestor, logger: logger.With("component", "batch_identify")}
}

// Run submits every photo in dir, in name order, through the regular upload
// pipeline. A rejected or failed file is recorded and the batch continues.
func (uc *BatchIdentifyUseCase) Run(ctx context.Context, dir string, opts BatchOptions) ([]BatchItem, error) {
	files, err := listPhotos(dir)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	items := make([]BatchItem, 0, len(files))
	for _, name := range files {
		if err := limiter.Wait(ctx); err != nil {
			return items, err
		}
		item := uc.submit(ctx, filepath.Join(dir, name))
		items = append(items, item)
		uc.logger.Info("batch_item", "file", name, "outcome", item.Outcome)
	}
	return items, nil
}

func (uc *BatchIdentifyUseCase) submit(ctx context.Context, path string) BatchItem {
	item := BatchItem{File: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		item.Outcome = domain.CategoryInvalidInput
		item.Message = err.Error()
		return item
	}
	defer f.Close()

	record, err := uc.ingestor.Upload(ctx, item.File, mime.TypeByExtension(filepath.Ext(path)), f)
	if err != nil {
		item.Outcome = domain.Diagnostic(err)
		item.Message = domain.UserMessage(err)
		return item
	}
	item.Outcome = outcomeOK
	item.IdentifiedName = record.IdentifiedName
	item.Confidence = record.Confidence
	return item
}

func listPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read photo dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !batchExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
