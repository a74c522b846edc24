package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := New(db, Dialect{Name: "postgres", Placeholder: sq.Dollar})
	store.now = func() time.Time { return fixedNow }
	store.newID = func() string { return "entry-1" }
	return store, mock
}

func TestInsertWritesWholeRecord(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec("INSERT INTO catalogue_entries").
		WithArgs("entry-1", "leaf.jpg", fixedNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := domain.EnrichedRecord{ClassificationResult: domain.ClassificationResult{IdentifiedName: "Rose", Confidence: 0.9}}
	entry, err := store.Insert(context.Background(), record, "leaf.jpg")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if entry.ID != "entry-1" || !entry.UploadedAt.Equal(fixedNow) || entry.IdentifiedName() != "Rose" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertPropagatesDriverError(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectExec("INSERT INTO catalogue_entries").WillReturnError(errors.New("connection reset"))

	_, err := store.Insert(context.Background(), domain.EnrichedRecord{}, "leaf.jpg")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestListOrdersNewestFirstAndFiltersUnknown(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "storage_key", "uploaded_at", "record"}).
		AddRow("c", "c.jpg", fixedNow.Add(2*time.Minute), []byte(`{"identified_name":"Tulsi"}`)).
		AddRow("b", "b.jpg", fixedNow.Add(time.Minute), []byte(`{"identified_name":" Unknown "}`)).
		AddRow("a", "a.jpg", fixedNow, []byte(`{"identified_name":"Rose"}`))
	mock.ExpectQuery(`SELECT id, storage_key, uploaded_at, record FROM catalogue_entries ORDER BY uploaded_at DESC, id DESC`).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "c" || entries[1].ID != "a" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListEmptyCatalogue(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectQuery("SELECT (.+) FROM catalogue_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id", "storage_key", "uploaded_at", "record"}))

	entries, err := store.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", entries)
	}
}

func TestUpdateRecordIsCompareAndSwap(t *testing.T) {
	store, mock := newStoreWithMock(t)
	prev := json.RawMessage(`{"identified_name":"Rose"}`)
	next := json.RawMessage(`{"identified_name":"Rose","wiki_url":"https://en.wikipedia.org/wiki/Rosa"}`)

	mock.ExpectExec(`UPDATE catalogue_entries SET record = \$1 WHERE id = \$2 AND record = \$3`).
		WithArgs(string(next), "a", string(prev)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE catalogue_entries`).
		WithArgs(string(next), "a", string(prev)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.UpdateRecord(context.Background(), "a", prev, next)
	if err != nil || !ok {
		t.Fatalf("first UpdateRecord() = %v, %v", ok, err)
	}
	ok, err = store.UpdateRecord(context.Background(), "a", prev, next)
	if err != nil || ok {
		t.Fatalf("stale UpdateRecord() = %v, %v; want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanVisitsEntriesInIDOrder(t *testing.T) {
	store, mock := newStoreWithMock(t)
	rows := sqlmock.NewRows([]string{"id", "storage_key", "uploaded_at", "record"}).
		AddRow("a", "a.jpg", fixedNow.Format(time.RFC3339Nano), []byte(`{}`)).
		AddRow("b", "b.jpg", fixedNow.Format(time.RFC3339Nano), []byte(`{}`))
	mock.ExpectQuery(`SELECT (.+) FROM catalogue_entries WHERE id > \$1 ORDER BY id LIMIT 200`).
		WithArgs("").
		WillReturnRows(rows)

	var seen []string
	err := store.Scan(context.Background(), func(e domain.CatalogueEntry) error {
		seen = append(seen, e.ID)
		if !e.UploadedAt.Equal(fixedNow) {
			t.Errorf("unexpected uploaded_at %v", e.UploadedAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected scan order %v", seen)
	}
}
