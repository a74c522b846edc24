// Package sqlstore implements the catalogue over database/sql. Dialects supply
// the placeholder format, time encoding and busy handling.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

const (
	Table = "catalogue_entries"

	scanPageSize = 200
)

var columns = []string{"id", "storage_key", "uploaded_at", "record"}

type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	// EncodeTime converts a timestamp into the column's driver value.
	EncodeTime func(time.Time) any
	// Retry wraps every statement; nil runs it once.
	Retry func(ctx context.Context, op func() error) error
	// RecordText is the expression reading the stored record as text.
	// Defaults to the bare column.
	RecordText string
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	now     func() time.Time
	newID   func() string
}

func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.EncodeTime == nil {
		dialect.EncodeTime = func(t time.Time) any { return t }
	}
	if dialect.RecordText == "" {
		dialect.RecordText = "record"
	}
	if dialect.Retry == nil {
		dialect.Retry = func(_ context.Context, op func() error) error { return op() }
	}
	return &Store{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Insert writes the whole record in one statement.
func (s *Store) Insert(ctx context.Context, record domain.EnrichedRecord, storageKey string) (domain.CatalogueEntry, error) {
	doc, err := json.Marshal(record)
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("marshal record: %w", err)
	}

	entry := domain.CatalogueEntry{
		ID:         s.newID(),
		StorageKey: storageKey,
		UploadedAt: s.now().UTC(),
		Record:     doc,
	}
	query, args, err := s.builder.Insert(Table).
		Columns(columns...).
		Values(entry.ID, entry.StorageKey, s.dialect.EncodeTime(entry.UploadedAt), string(doc)).
		ToSql()
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("build insert: %w", err)
	}

	err = s.dialect.Retry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("insert catalogue entry: %w", err)
	}
	return entry, nil
}

// List returns entries newest first. Unknown identifications are filtered
// here rather than in SQL so every backend applies the same rule.
func (s *Store) List(ctx context.Context, excludeUnknown bool) ([]domain.CatalogueEntry, error) {
	query, args, err := s.builder.Select(columns...).
		From(Table).
		OrderBy("uploaded_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	entries, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalogue entries: %w", err)
	}
	if !excludeUnknown {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if !domain.IsUnknownName(e.IdentifiedName()) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Scan visits every entry in id order, one page at a time. No rows are held
// open while fn runs, so fn may write through UpdateRecord.
func (s *Store) Scan(ctx context.Context, fn func(domain.CatalogueEntry) error) error {
	last := ""
	for {
		query, args, err := s.builder.Select(columns...).
			From(Table).
			Where(sq.Gt{"id": last}).
			OrderBy("id").
			Limit(scanPageSize).
			ToSql()
		if err != nil {
			return fmt.Errorf("build scan: %w", err)
		}

		page, err := s.query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("scan catalogue entries: %w", err)
		}
		for _, entry := range page {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(page) < scanPageSize {
			return nil
		}
		last = page[len(page)-1].ID
	}
}

// UpdateRecord swaps the record only while it still equals previous.
func (s *Store) UpdateRecord(ctx context.Context, id string, previous, next json.RawMessage) (bool, error) {
	query, args, err := s.builder.Update(Table).
		Set("record", string(next)).
		Where(sq.Eq{"id": id}).
		Where(sq.Expr(s.dialect.RecordText+" = ?", string(previous))).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	var affected int64
	err = s.dialect.Retry(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("update catalogue entry %s: %w", id, err)
	}
	return affected == 1, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]domain.CatalogueEntry, error) {
	var entries []domain.CatalogueEntry
	err := s.dialect.Retry(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.CatalogueEntry{}
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (domain.CatalogueEntry, error) {
	var (
		entry      domain.CatalogueEntry
		uploadedAt any
		record     []byte
	)
	if err := rows.Scan(&entry.ID, &entry.StorageKey, &uploadedAt, &record); err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("scan row: %w", err)
	}
	ts, err := decodeTime(uploadedAt)
	if err != nil {
		return domain.CatalogueEntry{}, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	entry.UploadedAt = ts
	entry.Record = json.RawMessage(record)
	return entry, nil
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	case nil:
		return time.Time{}, errors.New("uploaded_at is null")
	default:
		return time.Time{}, fmt.Errorf("unsupported uploaded_at type %T", v)
	}
}
