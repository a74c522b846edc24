package jsondir

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/core/augment"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/usecase"
)

func writeFile(t *testing.T, dir, name, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func TestScanSkipsAggregateFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "rose.json", `{"identified_name":"Rose"}`, now)
	writeFile(t, dir, "index.json", `["rose.json"]`, now)
	writeFile(t, dir, "all_plants.json", `[]`, now)
	writeFile(t, dir, "notes.txt", `hello`, now)

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var ids []string
	if err := store.Scan(context.Background(), func(e domain.CatalogueEntry) error {
		ids = append(ids, e.ID)
		return nil
	}); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "rose" {
		t.Fatalf("unexpected scanned ids %v", ids)
	}
}

func TestListNewestFirstExcludingUnknown(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, dir, "old.json", `{"identified_name":"Fern"}`, base)
	writeFile(t, dir, "mid.json", `{"identified_name":"UNKNOWN"}`, base.Add(time.Hour))
	writeFile(t, dir, "new.json", `{"identified_name":"Tulsi"}`, base.Add(2*time.Hour))
	writeFile(t, dir, "broken.json", `{"identified_name":`, base.Add(3*time.Hour))

	store, _ := New(dir)
	entries, err := store.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "new" || entries[1].ID != "old" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestInsertThenCompareAndSwap(t *testing.T) {
	store, _ := New(t.TempDir())
	ctx := context.Background()

	rec := domain.EnrichedRecord{ClassificationResult: domain.ClassificationResult{IdentifiedName: "Rose"}}
	entry, err := store.Insert(ctx, rec, "3f2a.jpg")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if entry.ID != "3f2a" {
		t.Fatalf("expected id from storage key stem, got %q", entry.ID)
	}

	var doc map[string]json.RawMessage
	_ = json.Unmarshal(entry.Record, &doc)
	doc["wiki_url"] = json.RawMessage(`"https://en.wikipedia.org/wiki/Rose"`)
	next, _ := json.Marshal(doc)

	ok, err := store.UpdateRecord(ctx, entry.ID, entry.Record, next)
	if err != nil || !ok {
		t.Fatalf("UpdateRecord() = %v, %v", ok, err)
	}
	ok, err = store.UpdateRecord(ctx, entry.ID, entry.Record, next)
	if err != nil || ok {
		t.Fatalf("stale UpdateRecord() = %v, %v; want false", ok, err)
	}
	ok, err = store.UpdateRecord(ctx, "missing", entry.Record, next)
	if err != nil || ok {
		t.Fatalf("missing UpdateRecord() = %v, %v; want false", ok, err)
	}
}

func TestReconcileKeepsListingOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, dir, "old.json", `{"identified_name":"Fern","scientific_name":"Polypodiopsida"}`, base)
	writeFile(t, dir, "new.json", `{"identified_name":"Rose","wiki_url":"https://en.wikipedia.org/wiki/Rose"}`, base.Add(time.Hour))

	store, _ := New(dir)
	ctx := context.Background()
	report, err := usecase.NewReconcileUseCase(store, nil, augment.Derivations(nil), nil, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Updated != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	entries, err := store.List(ctx, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "new" || entries[1].ID != "old" {
		t.Fatalf("reconcile reordered the listing: %+v", entries)
	}
	if !entries[1].UploadedAt.Equal(base) {
		t.Fatalf("upload time changed to %v", entries[1].UploadedAt)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(entries[1].Record, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(doc["wiki_url"]) != `"https://en.wikipedia.org/wiki/Polypodiopsida"` {
		t.Fatalf("wiki_url not backfilled: %s", doc["wiki_url"])
	}
}

func TestScanRecoversStorageKey(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "upload.json",
		`{"identified_name":"Rose","reference_image":{"url":"http://localhost:8001/uploads/3f2a.jpg","source":"public_upload","license":"public"}}`, now)
	writeFile(t, dir, "local.json",
		`{"identified_name":"Fern","reference_image":{"url":"photos/fern.jpg","source":"local","license":"public"}}`, now)
	writeFile(t, dir, "bare.json", `{"identified_name":"Tulsi"}`, now)

	store, _ := New(dir)
	keys := map[string]string{}
	if err := store.Scan(context.Background(), func(e domain.CatalogueEntry) error {
		keys[e.ID] = e.StorageKey
		return nil
	}); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := map[string]string{"upload": "3f2a.jpg", "local": "", "bare": ""}
	for id, key := range want {
		if keys[id] != key {
			t.Fatalf("entry %s: storage key %q, want %q", id, keys[id], key)
		}
	}
}

func TestInsertedEntryKeepsStorageKeyOnReload(t *testing.T) {
	store, _ := New(t.TempDir())
	ctx := context.Background()
	rec := augment.Augment(
		domain.ClassificationResult{IdentifiedName: "Rose", ScientificName: "Rosa"},
		domain.StorageLocator{Backend: "local", BaseURL: "http://localhost:8001/uploads", Key: "9b1c.png"},
	)
	if _, err := store.Insert(ctx, rec, "9b1c.png"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	entries, err := store.List(ctx, false)
	if err != nil || len(entries) != 1 {
		t.Fatalf("List() = %v, %v", entries, err)
	}
	if entries[0].StorageKey != "9b1c.png" {
		t.Fatalf("storage key = %q", entries[0].StorageKey)
	}
}
