package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wareline/kbcore/internal/model"
)

// DocumentStore persists document records with field-level audit logging.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `id, document_number, source_type, filename, file_hash, title, category,
	chunks_count, processing_status, error_message, version, approval_status, created_at, updated_at`

// Create inserts a new document record.
func (s *DocumentStore) Create(ctx context.Context, doc *model.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.DocumentNumber,
		doc.SourceType,
		doc.Filename,
		doc.FileHash,
		doc.Title,
		doc.Category,
		doc.ChunksCount,
		doc.ProcessingStatus,
		doc.ErrorMessage,
		doc.Version,
		doc.ApprovalStatus,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// Update writes the document's mutable fields and records an audit entry
// for every field whose value actually changed (old/new per field), in the
// same transaction as the update itself.
func (s *DocumentStore) Update(ctx context.Context, doc *model.Document) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		old, err := scanDocument(tx.QueryRowContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, doc.ID))
		if err != nil {
			return err
		}

		doc.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET
				document_number = $2, source_type = $3, filename = $4, file_hash = $5,
				title = $6, category = $7, chunks_count = $8, processing_status = $9,
				error_message = $10, version = $11, approval_status = $12, updated_at = $13
			WHERE id = $1
		`,
			doc.ID,
			doc.DocumentNumber,
			doc.SourceType,
			doc.Filename,
			doc.FileHash,
			doc.Title,
			doc.Category,
			doc.ChunksCount,
			doc.ProcessingStatus,
			doc.ErrorMessage,
			doc.Version,
			doc.ApprovalStatus,
			doc.UpdatedAt,
		)
		if err != nil {
			return err
		}

		for _, change := range DiffFields(old, doc) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO document_audit_log (document_id, field, old_value, new_value)
				VALUES ($1, $2, $3, $4)
			`, doc.ID, change.Field, change.OldValue, change.NewValue)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a document by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*model.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

// GetByHash retrieves a document by content hash, used for dedup.
func (s *DocumentStore) GetByHash(ctx context.Context, hash string) (*model.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_hash = $1`, hash))
}

// List returns documents, newest first.
func (s *DocumentStore) List(ctx context.Context, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document; chunks cascade in the schema.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// NextDocumentNumber produces the next human-readable document identifier
// from the database sequence.
func (s *DocumentStore) NextDocumentNumber(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('document_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next document number: %w", err)
	}
	return fmt.Sprintf("DOC-%06d", n), nil
}

// AuditEntries returns the audit trail for a document, oldest first.
func (s *DocumentStore) AuditEntries(ctx context.Context, documentID string) ([]FieldChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, old_value, new_value
		FROM document_audit_log
		WHERE document_id = $1
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []FieldChange
	for rows.Next() {
		var c FieldChange
		if err := rows.Scan(&c.Field, &c.OldValue, &c.NewValue); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// FieldChange records one audited field mutation.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// DiffFields compares the audited fields of two document revisions and
// returns one change per field whose value differs.
func DiffFields(old, new *model.Document) []FieldChange {
	fields := []struct {
		name     string
		oldValue string
		newValue string
	}{
		{"document_number", old.DocumentNumber, new.DocumentNumber},
		{"filename", old.Filename, new.Filename},
		{"file_hash", old.FileHash, new.FileHash},
		{"title", old.Title, new.Title},
		{"category", old.Category, new.Category},
		{"chunks_count", strconv.Itoa(old.ChunksCount), strconv.Itoa(new.ChunksCount)},
		{"processing_status", string(old.ProcessingStatus), string(new.ProcessingStatus)},
		{"error_message", old.ErrorMessage, new.ErrorMessage},
		{"version", strconv.Itoa(old.Version), strconv.Itoa(new.Version)},
		{"approval_status", string(old.ApprovalStatus), string(new.ApprovalStatus)},
	}

	var changes []FieldChange
	for _, f := range fields {
		if f.oldValue != f.newValue {
			changes = append(changes, FieldChange{Field: f.name, OldValue: f.oldValue, NewValue: f.newValue})
		}
	}
	return changes
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(
		&doc.ID,
		&doc.DocumentNumber,
		&doc.SourceType,
		&doc.Filename,
		&doc.FileHash,
		&doc.Title,
		&doc.Category,
		&doc.ChunksCount,
		&doc.ProcessingStatus,
		&doc.ErrorMessage,
		&doc.Version,
		&doc.ApprovalStatus,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
