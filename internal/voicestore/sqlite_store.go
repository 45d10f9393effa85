// Package voicestore provides the SQLite-backed implementation of the
// core.VoiceStore interface. Records are keyed by (backend, voice_id) and
// default-voice changes are applied inside a single transaction so readers
// never observe two defaults for one backend.
package voicestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/book-expert/voice-agent/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS voices (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	backend    TEXT NOT NULL,
	voice_id   TEXT NOT NULL,
	descriptor BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	UNIQUE(backend, voice_id)
);
CREATE INDEX IF NOT EXISTS idx_voices_default ON voices(backend, is_default);
`

// SQLiteStore implements core.VoiceStore on a local SQLite database. The
// database file may live on a shared volume, which is what serverless
// deployments rely on for state that survives invocations.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if necessary) the voice database at dbPath.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open voice database '%s': %w", dbPath, err)
	}

	// Serialize writers; SQLite holds a single write lock anyway and the
	// driver returns busy errors under contention otherwise.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize voice schema: %w (close: %w)", err, closeErr)
		}

		return nil, fmt.Errorf("failed to initialize voice schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close voice database: %w", err)
	}

	return nil
}

// Put inserts or overwrites a record by voice id. A record carrying
// IsDefault clears any prior default for the same backend in the same
// transaction.
func (s *SQLiteStore) Put(ctx context.Context, record core.VoiceRecord) error {
	descriptor, err := json.Marshal(record.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor for voice '%s': %w", record.VoiceID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin voice transaction: %w", err)
	}

	err = s.putInTx(ctx, tx, record, descriptor)
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			return fmt.Errorf("%w (rollback: %w)", err, rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit voice '%s': %w", record.VoiceID, err)
	}

	return nil
}

func (s *SQLiteStore) putInTx(
	ctx context.Context,
	tx *sql.Tx,
	record core.VoiceRecord,
	descriptor []byte,
) error {
	if record.IsDefault {
		_, err := tx.ExecContext(ctx,
			"UPDATE voices SET is_default = 0 WHERE backend = ?", string(record.Backend))
		if err != nil {
			return fmt.Errorf("failed to clear default for backend '%s': %w", record.Backend, err)
		}
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO voices (backend, voice_id, descriptor, created_at, is_default)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(backend, voice_id) DO UPDATE SET
	descriptor = excluded.descriptor,
	is_default = excluded.is_default`,
		string(record.Backend), record.VoiceID, descriptor, createdAt, boolToInt(record.IsDefault))
	if err != nil {
		return fmt.Errorf("failed to upsert voice '%s': %w", record.VoiceID, err)
	}

	return nil
}

// Get returns the record for a voice id, or core.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, backend core.BackendName, voiceID string) (core.VoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT voice_id, backend, descriptor, created_at, is_default
FROM voices WHERE backend = ? AND voice_id = ?`, string(backend), voiceID)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.VoiceRecord{}, fmt.Errorf("%w: voice '%s' for backend '%s'", core.ErrNotFound, voiceID, backend)
		}

		return core.VoiceRecord{}, fmt.Errorf("failed to read voice '%s': %w", voiceID, err)
	}

	return record, nil
}

// GetDefault returns the default record for a backend, or core.ErrNotFound.
func (s *SQLiteStore) GetDefault(ctx context.Context, backend core.BackendName) (core.VoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT voice_id, backend, descriptor, created_at, is_default
FROM voices WHERE backend = ? AND is_default = 1`, string(backend))

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.VoiceRecord{}, fmt.Errorf("%w: no default voice for backend '%s'", core.ErrNotFound, backend)
		}

		return core.VoiceRecord{}, fmt.Errorf("failed to read default voice for backend '%s': %w", backend, err)
	}

	return record, nil
}

// List returns the voice ids for a backend in creation order.
func (s *SQLiteStore) List(ctx context.Context, backend core.BackendName) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT voice_id FROM voices WHERE backend = ? ORDER BY seq", string(backend))
	if err != nil {
		return nil, fmt.Errorf("failed to list voices for backend '%s': %w", backend, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	ids := []string{}

	for rows.Next() {
		var id string

		scanErr := rows.Scan(&id)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan voice id: %w", scanErr)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate voices for backend '%s': %w", backend, err)
	}

	return ids, nil
}

// Delete removes a record. Deleting an absent id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, backend core.BackendName, voiceID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM voices WHERE backend = ? AND voice_id = ?", string(backend), voiceID)
	if err != nil {
		return fmt.Errorf("failed to delete voice '%s': %w", voiceID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.VoiceRecord, error) {
	var (
		record     core.VoiceRecord
		backend    string
		descriptor []byte
		isDefault  int
	)

	err := row.Scan(&record.VoiceID, &backend, &descriptor, &record.CreatedAt, &isDefault)
	if err != nil {
		return core.VoiceRecord{}, err
	}

	record.Backend = core.BackendName(backend)
	record.IsDefault = isDefault != 0

	err = json.Unmarshal(descriptor, &record.Descriptor)
	if err != nil {
		return core.VoiceRecord{}, fmt.Errorf("failed to unmarshal descriptor for voice '%s': %w", record.VoiceID, err)
	}

	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
