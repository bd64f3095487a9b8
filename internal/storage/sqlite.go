package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    origin TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    type TEXT NOT NULL DEFAULT '',
    ingested_at TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    chunk_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    text TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '',
    length INTEGER NOT NULL,
    processed_at TEXT NOT NULL,
    vector BLOB NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

const documentColumns = `id, name, origin, size, type, ingested_at, description, chunk_count, status, error`

// SQLiteStore persists documents and chunks in a SQLite database. Vectors are
// stored as float32 BLOBs and scanned in Go at query time.
type SQLiteStore struct {
	conn *sql.DB
	dim  int
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
func NewSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; transactions serialize chunk commits against scans
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{conn: conn, dim: dimension}, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	return saveDocument(ctx, s.conn, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveDocument(ctx context.Context, db execer, doc *Document) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			origin = excluded.origin,
			size = excluded.size,
			type = excluded.type,
			ingested_at = excluded.ingested_at,
			description = excluded.description,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			error = excluded.error
	`, doc.ID, doc.Name, doc.Origin, doc.Size, doc.Type, formatTime(doc.IngestedAt),
		doc.Description, doc.ChunkCount, string(doc.Status), doc.Error)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Add replaces the document's chunks and marks it COMPLETE in a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, doc *Document, chunks []*Chunk) (err error) {
	if err := validateAdd(doc, chunks, s.dim); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("%w (rollback error: %v)", err, rollbackErr)
			}
		}
	}()

	committed := *doc
	committed.Status = StatusComplete
	committed.ChunkCount = len(chunks)
	committed.Error = ""
	if err = saveDocument(ctx, tx, &committed); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, start_offset, end_offset, text, metadata, length, processed_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err = stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Index, c.Start, c.End, c.Text,
			c.Metadata, c.Length, formatTime(c.ProcessedAt), EncodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	doc.Status = committed.Status
	doc.ChunkCount = committed.ChunkCount
	doc.Error = ""
	return nil
}

// Query scans every chunk of a COMPLETE document and ranks them by cosine similarity.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int, threshold float64) ([]SimilarityResult, error) {
	if k <= 0 {
		return []SimilarityResult{}, nil
	}
	if err := checkQueryVector(vector, s.dim); err != nil {
		return nil, err
	}

	// a single statement reads a consistent snapshot of chunks and their documents
	rows, err := s.conn.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ordinal, c.start_offset, c.end_offset, c.text, c.metadata,
		       c.length, c.processed_at, c.vector,
		       d.id, d.name, d.origin, d.size, d.type, d.ingested_at, d.description, d.chunk_count, d.status, d.error
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?
	`, string(StatusComplete))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]*Document)
	results := []SimilarityResult{}
	for rows.Next() {
		var (
			c                       Chunk
			d                       Document
			processedAt, ingestedAt string
			status                  string
			blob                    []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Start, &c.End, &c.Text, &c.Metadata,
			&c.Length, &processedAt, &blob,
			&d.ID, &d.Name, &d.Origin, &d.Size, &d.Type, &ingestedAt, &d.Description, &d.ChunkCount,
			&status, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Embedding = DecodeVector(blob)

		score := CosineSimilarity(vector, c.Embedding)
		if score < threshold {
			continue
		}

		doc, ok := docs[d.ID]
		if !ok {
			d.Status = Status(status)
			d.IngestedAt = parseTime(ingestedAt)
			doc = &d
			docs[d.ID] = doc
		}
		c.ProcessedAt = parseTime(processedAt)
		results = append(results, SimilarityResult{Chunk: &c, Document: cloneDocument(doc), Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return rank(results, k), nil
}

// RemoveDocument deletes the document and its chunks in one transaction.
func (s *SQLiteStore) RemoveDocument(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY ingested_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	// RFC3339 strings with differing fractional digits do not sort lexically
	sortDocuments(docs)
	return docs, nil
}

func (s *SQLiteStore) Chunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, document_id, ordinal, start_offset, end_offset, text, metadata, length, processed_at, vector
		FROM chunks WHERE document_id = ? ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []*Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) Dimension() int { return s.dim }

func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc        Document
		ingestedAt string
		status     string
	)
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Origin, &doc.Size, &doc.Type, &ingestedAt,
		&doc.Description, &doc.ChunkCount, &status, &doc.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Status = Status(status)
	doc.IngestedAt = parseTime(ingestedAt)
	return &doc, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		c           Chunk
		processedAt string
		vector      []byte
	)
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Start, &c.End, &c.Text, &c.Metadata,
		&c.Length, &processedAt, &vector); err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.ProcessedAt = parseTime(processedAt)
	c.Embedding = DecodeVector(vector)
	return &c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime returns the zero time for unparseable values.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
