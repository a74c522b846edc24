// Package jsondir keeps one JSON document per plant in a flat directory, the
// layout used for offline data sets.
package jsondir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/plant-catalogue/internal/core/augment"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage"
)

// Aggregate files generated next to the records; they are not records.
var reservedFiles = map[string]bool{
	"index.json":      true,
	"all_plants.json": true,
}

type Store struct {
	dir string

	mu sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Insert(ctx context.Context, record domain.EnrichedRecord, storageKey string) (domain.CatalogueEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.CatalogueEntry{}, err
	}
	doc, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("marshal record: %w", err)
	}

	id := uuid.NewString()
	if stem := strings.TrimSuffix(storageKey, filepath.Ext(storageKey)); stem != "" && !strings.ContainsAny(stem, `/\`) {
		id = stem
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recordPath := s.path(id)
	if _, err := os.Stat(recordPath); err == nil {
		return domain.CatalogueEntry{}, fmt.Errorf("record %s already exists", id)
	}
	if err := writeAtomic(recordPath, doc); err != nil {
		return domain.CatalogueEntry{}, err
	}
	info, err := os.Stat(recordPath)
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("stat record: %w", err)
	}
	return domain.CatalogueEntry{ID: id, StorageKey: storageKey, UploadedAt: info.ModTime().UTC(), Record: doc}, nil
}

// List orders by file modification time, newest first. Files that are not JSON
// documents are left out.
func (s *Store) List(ctx context.Context, excludeUnknown bool) ([]domain.CatalogueEntry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CatalogueEntry, 0, len(entries))
	for _, e := range entries {
		if !json.Valid(e.Record) {
			continue
		}
		if excludeUnknown && domain.IsUnknownName(e.IdentifiedName()) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Scan visits every record file in name order, including unparsable ones so
// the caller can count them.
func (s *Store) Scan(ctx context.Context, fn func(domain.CatalogueEntry) error) error {
	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecord rewrites the record file when it still holds previous. The file
// keeps its modification time, which is the entry's upload time.
func (s *Store) UpdateRecord(_ context.Context, id string, previous, next json.RawMessage) (bool, error) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, next, "", "  "); err != nil {
		return false, fmt.Errorf("indent record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recordPath := s.path(id)
	current, err := os.ReadFile(recordPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read record %s: %w", id, err)
	}
	if !bytes.Equal(current, previous) {
		return false, nil
	}
	info, err := os.Stat(recordPath)
	if err != nil {
		return false, fmt.Errorf("stat record %s: %w", id, err)
	}
	if err := writeAtomic(recordPath, pretty.Bytes()); err != nil {
		return false, err
	}
	if err := os.Chtimes(recordPath, info.ModTime(), info.ModTime()); err != nil {
		return true, fmt.Errorf("restore upload time of %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) load(ctx context.Context) ([]domain.CatalogueEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	entries := make([]domain.CatalogueEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || reservedFiles[name] || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		entries = append(entries, domain.CatalogueEntry{
			ID:         strings.TrimSuffix(name, ".json"),
			StorageKey: storageKeyOf(data),
			UploadedAt: info.ModTime().UTC(),
			Record:     data,
		})
	}
	return entries, nil
}

// storageKeyOf recovers the storage key from the reference image of a record
// created by an upload. The image URL ends in the escaped key. Records from
// other sources have no stored upload and yield "".
func storageKeyOf(record []byte) string {
	var head struct {
		ReferenceImage *domain.ReferenceImage `json:"reference_image"`
	}
	if err := json.Unmarshal(record, &head); err != nil || head.ReferenceImage == nil {
		return ""
	}
	if head.ReferenceImage.Source != augment.ReferenceSourcePublicUpload {
		return ""
	}
	u, err := url.Parse(head.ReferenceImage.URL)
	if err != nil {
		return ""
	}
	key := path.Base(u.Path)
	if key == "." || storage.ValidateKey(key) != nil {
		return ""
	}
	return key
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func writeAtomic(target string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(target), ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}
