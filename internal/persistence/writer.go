package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"SynthLedger/internal/engine"
)

// JournalWriter writes applied-operation records to the ops table using
// multi-row INSERT. Writes are idempotent: a record that already exists for
// (namespace, sequence) is skipped, so replays after a crash are safe.
type JournalWriter struct {
	db *sql.DB
}

func NewJournalWriter(db *sql.DB) *JournalWriter {
	return &JournalWriter{db: db}
}

// WriteBatch inserts a batch of records inside the given transaction.
func (w *JournalWriter) WriteBatch(ctx context.Context, tx *sql.Tx, records []engine.Record) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO ops (sequence, namespace, op, details, applied_at) VALUES `
	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*5)

	for i, rec := range records {
		details, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("marshal details for seq %d: %w", rec.Sequence, err)
		}
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, rec.Sequence, rec.Namespace, rec.Op, details, rec.AppliedAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (namespace, sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence for a namespace, zero
// when the journal is empty.
func (w *JournalWriter) LastSequence(ctx context.Context, namespace string) (int64, error) {
	var seq int64
	err := w.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM ops WHERE namespace = $1`,
		namespace,
	).Scan(&seq)
	return seq, err
}
