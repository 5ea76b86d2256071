package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"github.com/rwfshr/markup/internal/services"
)

var (
	ErrNotFound        = errors.New("draft not found")
	ErrVersionConflict = errors.New("draft version conflict")
)

// AnswerDraft is an assessor's in-progress answer sheet for one assessment.
type AnswerDraft struct {
	AssessmentID int64               `json:"assessment_id"`
	Owner        string              `json:"-"`
	MarkupTypeID int64               `json:"markup_type_id"`
	BatchType    services.BatchType  `json:"type_id"`
	Sheet        services.Sheet      `json:"sheet"`
	View         services.RecordView `json:"view"`
	Version      int64               `json:"version"`
	ETag         string              `json:"-"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// SchemaDraft is an editor session. BaseFields holds the published rows the
// draft started from, used to carry field ids over on publish.
type SchemaDraft struct {
	ID           string                 `json:"id"`
	Owner        string                 `json:"-"`
	MarkupTypeID int64                  `json:"markup_type_id,omitempty"`
	Form         services.SchemaForm    `json:"form"`
	BaseFields   []services.SchemaField `json:"-"`
	Version      int64                  `json:"version"`
	ETag         string                 `json:"-"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the sqlite file at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := ""
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// fingerprint is a short blake2b digest of a stored payload, used as ETag.
func fingerprint(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateAnswerDraft stores d at version 1 unless the assessment already has a
// draft. created is false when the stored draft was kept; it is returned in
// place of d.
func (s *SQLiteStore) CreateAnswerDraft(ctx context.Context, d *AnswerDraft) (stored *AnswerDraft, created bool, err error) {
	sheet, view, err := encodeDraft(d)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO answer_drafts
		(assessment_id, owner, markup_type_id, batch_type, sheet, view, version, etag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(assessment_id) DO NOTHING`,
		d.AssessmentID, d.Owner, d.MarkupTypeID, int(d.BatchType), string(sheet), string(view),
		fingerprint(sheet), formatTime(now), formatTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("create answer draft %d: %w", d.AssessmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err = s.GetAnswerDraft(ctx, d.AssessmentID)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// ReplaceAnswerDraft overwrites the draft with d if the stored version still
// equals expected. The version keeps counting up so earlier ETags stay stale.
func (s *SQLiteStore) ReplaceAnswerDraft(ctx context.Context, expected int64, d *AnswerDraft) (*AnswerDraft, error) {
	sheet, view, err := encodeDraft(d)
	if err != nil {
		return nil, err
	}
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `UPDATE answer_drafts
		SET owner = ?, markup_type_id = ?, batch_type = ?, sheet = ?, view = ?,
			version = version + 1, etag = ?, created_at = ?, updated_at = ?
		WHERE assessment_id = ? AND version = ?`,
		d.Owner, d.MarkupTypeID, int(d.BatchType), string(sheet), string(view),
		fingerprint(sheet), now, now, d.AssessmentID, expected)
	if err != nil {
		return nil, fmt.Errorf("replace answer draft %d: %w", d.AssessmentID, err)
	}
	if err := s.checkSwapped(ctx, res, "answer_drafts", "assessment_id", d.AssessmentID); err != nil {
		return nil, err
	}
	return s.GetAnswerDraft(ctx, d.AssessmentID)
}

func encodeDraft(d *AnswerDraft) (sheet, view []byte, err error) {
	if sheet, err = json.Marshal(d.Sheet); err != nil {
		return nil, nil, fmt.Errorf("encode sheet: %w", err)
	}
	if view, err = json.Marshal(d.View); err != nil {
		return nil, nil, fmt.Errorf("encode view: %w", err)
	}
	return sheet, view, nil
}

func (s *SQLiteStore) GetAnswerDraft(ctx context.Context, assessmentID int64) (*AnswerDraft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT assessment_id, owner, markup_type_id, batch_type, sheet, view,
		version, etag, created_at, updated_at FROM answer_drafts WHERE assessment_id = ?`, assessmentID)
	var (
		d                AnswerDraft
		batchType        int
		sheet, view      string
		created, updated string
	)
	err := row.Scan(&d.AssessmentID, &d.Owner, &d.MarkupTypeID, &batchType, &sheet, &view,
		&d.Version, &d.ETag, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answer draft %d: %w", assessmentID, err)
	}
	if err := json.Unmarshal([]byte(sheet), &d.Sheet); err != nil {
		return nil, fmt.Errorf("decode sheet: %w", err)
	}
	if err := json.Unmarshal([]byte(view), &d.View); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	d.BatchType = services.BatchType(batchType)
	d.CreatedAt, d.UpdatedAt = parseTime(created), parseTime(updated)
	return &d, nil
}

// UpdateAnswerSheet replaces the sheet if the stored version still equals
// expected, bumping the version.
func (s *SQLiteStore) UpdateAnswerSheet(ctx context.Context, assessmentID, expected int64, sheet services.Sheet) (*AnswerDraft, error) {
	data, err := json.Marshal(sheet)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE answer_drafts
		SET sheet = ?, version = version + 1, etag = ?, updated_at = ?
		WHERE assessment_id = ? AND version = ?`,
		string(data), fingerprint(data), formatTime(s.now()), assessmentID, expected)
	if err != nil {
		return nil, fmt.Errorf("update answer draft %d: %w", assessmentID, err)
	}
	if err := s.checkSwapped(ctx, res, "answer_drafts", "assessment_id", assessmentID); err != nil {
		return nil, err
	}
	return s.GetAnswerDraft(ctx, assessmentID)
}

func (s *SQLiteStore) DeleteAnswerDraft(ctx context.Context, assessmentID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM answer_drafts WHERE assessment_id = ?`, assessmentID)
	if err != nil {
		return fmt.Errorf("delete answer draft %d: %w", assessmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkSwapped turns a compare-and-swap that touched no row into
// ErrVersionConflict or ErrNotFound.
func (s *SQLiteStore) checkSwapped(ctx context.Context, res sql.Result, table, key string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	q := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE %s = ?`, table, key)
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *SQLiteStore) CreateSchemaDraft(ctx context.Context, d *SchemaDraft) error {
	form, err := json.Marshal(d.Form)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if d.BaseFields == nil {
		d.BaseFields = []services.SchemaField{}
	}
	base, err := json.Marshal(d.BaseFields)
	if err != nil {
		return fmt.Errorf("encode base fields: %w", err)
	}
	now := s.now()
	d.ID = uuid.NewString()
	d.Version = 1
	d.ETag = fingerprint(form)
	d.CreatedAt, d.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx, `INSERT INTO schema_drafts
		(id, owner, markup_type_id, form, base_fields, version, etag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Owner, d.MarkupTypeID, string(form), string(base), d.Version, d.ETag, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create schema draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSchemaDraft(ctx context.Context, id string) (*SchemaDraft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, owner, markup_type_id, form, base_fields, version, etag,
		created_at, updated_at FROM schema_drafts WHERE id = ?`, id)
	var (
		d                SchemaDraft
		form, base       string
		created, updated string
	)
	err := row.Scan(&d.ID, &d.Owner, &d.MarkupTypeID, &form, &base, &d.Version, &d.ETag, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema draft %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(form), &d.Form); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	if err := json.Unmarshal([]byte(base), &d.BaseFields); err != nil {
		return nil, fmt.Errorf("decode base fields: %w", err)
	}
	d.CreatedAt, d.UpdatedAt = parseTime(created), parseTime(updated)
	return &d, nil
}

// UpdateSchemaDraft swaps in a new form at expected version. markupTypeID
// records the upstream schema after a first publish; pass 0 to keep it.
func (s *SQLiteStore) UpdateSchemaDraft(ctx context.Context, id string, expected int64, form services.SchemaForm, markupTypeID int64, base []services.SchemaField) (*SchemaDraft, error) {
	data, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}
	var baseArg any
	if base != nil {
		b, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("encode base fields: %w", err)
		}
		baseArg = string(b)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE schema_drafts
		SET form = ?, version = version + 1, etag = ?, updated_at = ?,
			markup_type_id = CASE WHEN ? > 0 THEN ? ELSE markup_type_id END,
			base_fields = COALESCE(?, base_fields)
		WHERE id = ? AND version = ?`,
		string(data), fingerprint(data), formatTime(s.now()), markupTypeID, markupTypeID, baseArg, id, expected)
	if err != nil {
		return nil, fmt.Errorf("update schema draft %s: %w", id, err)
	}
	if err := s.checkSwapped(ctx, res, "schema_drafts", "id", id); err != nil {
		return nil, err
	}
	return s.GetSchemaDraft(ctx, id)
}

func (s *SQLiteStore) DeleteSchemaDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schema_drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schema draft %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
