package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/wareline/kbcore/internal/model"
)

// ChunkStore persists chunk records. Embeddings themselves live in the
// vector index; has_embedding/embedding_id here are the source of truth
// for which chunks are searchable.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkColumns = `id, document_id, chunk_index, content, content_type, section_title,
	section_path, page_number, word_count, token_estimate, has_embedding, embedding_id, created_at`

// ReplaceForDocument atomically swaps a document's chunk set: all prior
// chunks are deleted and the new set inserted inside one transaction, so a
// failed run never leaves a half-inserted mix of old and new chunks.
func (s *ChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []model.Chunk) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (`+chunkColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, c := range chunks {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			_, err := stmt.ExecContext(ctx,
				c.ID,
				documentID,
				c.ChunkIndex,
				c.Content,
				c.ContentType,
				c.SectionTitle,
				c.SectionPath,
				NullInt(c.PageNumber),
				c.WordCount,
				c.TokenEstimate,
				c.HasEmbedding,
				c.EmbeddingID,
				createdAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByDocument retrieves a document's chunks in retrieval order.
func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// PendingChunk is a chunk awaiting embedding, carrying the owning
// document's category for index metadata.
type PendingChunk struct {
	model.Chunk
	Category string
}

// Pending returns chunks lacking an embedding, oldest first.
func (s *ChunkStore) Pending(ctx context.Context, limit int) ([]PendingChunk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.content_type, c.section_title,
			c.section_path, c.page_number, c.word_count, c.token_estimate, c.has_embedding,
			c.embedding_id, c.created_at, d.category
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.has_embedding = FALSE
		ORDER BY c.created_at ASC, c.chunk_index ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingChunk
	for rows.Next() {
		var p PendingChunk
		var page sql.NullInt64
		err := rows.Scan(
			&p.ID, &p.DocumentID, &p.ChunkIndex, &p.Content, &p.ContentType,
			&p.SectionTitle, &p.SectionPath, &page, &p.WordCount, &p.TokenEstimate,
			&p.HasEmbedding, &p.EmbeddingID, &p.CreatedAt, &p.Category,
		)
		if err != nil {
			return nil, err
		}
		p.PageNumber = IntPtr(page)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkEmbedded flips a chunk to searchable. Called only after the vector
// write has succeeded, so the flag never points at a missing vector.
func (s *ChunkStore) MarkEmbedded(ctx context.Context, chunkID, embeddingID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chunks SET has_embedding = TRUE, embedding_id = $2 WHERE id = $1
	`, chunkID, embeddingID)
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

// EmbeddingCounts reports indexed vs pending chunk counts.
func (s *ChunkStore) EmbeddingCounts(ctx context.Context) (indexed, pending int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE has_embedding),
			COUNT(*) FILTER (WHERE NOT has_embedding)
		FROM chunks
	`).Scan(&indexed, &pending)
	return indexed, pending, err
}

// IDsByDocument returns all chunk ids for a document, for vector-index
// cleanup.
func (s *ChunkStore) IDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var page sql.NullInt64
		err := rows.Scan(
			&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.ContentType,
			&c.SectionTitle, &c.SectionPath, &page, &c.WordCount, &c.TokenEstimate,
			&c.HasEmbedding, &c.EmbeddingID, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.PageNumber = IntPtr(page)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
