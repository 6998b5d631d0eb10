package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	queue TEXT NOT NULL,
	row TEXT NOT NULL,
	inserted INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_queue ON journal (queue, seq);`

// SQLiteJournal stores the rows of every queue in a single sqlite database file.
type SQLiteJournal struct {
	db    *sql.DB
	queue string
}

func OpenSQLiteJournal(path string, queue string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not make directory %s for sqlite journal", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite journal %s", path)
	}
	// Writes are serialised by the scheduler; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return &SQLiteJournal{db: db, queue: queue}, nil
}

// Reader loads the rows of this queue in insertion order.
func (j *SQLiteJournal) Reader(ctx context.Context) (Reader, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT row FROM journal WHERE queue = ? ORDER BY seq", j.queue)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	reader := newBufferedReader(Columns)
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, errors.WithStack(err)
		}
		addEncodedRow(reader, encoded)
	}
	return reader, errors.WithStack(rows.Err())
}

// Writer returns a writer appending to this queue. Rows are inserted in one transaction per flush.
func (j *SQLiteJournal) Writer() Writer {
	return &sqliteWriter{journal: j, row: newRowBuffer(Columns)}
}

func (j *SQLiteJournal) Close() error {
	return errors.WithStack(j.db.Close())
}

type sqliteWriter struct {
	journal *SQLiteJournal
	row     *rowBuffer
	pending [][]string
}

func (w *sqliteWriter) Set(column, value string) error {
	return w.row.Set(column, value)
}

func (w *sqliteWriter) EmitRow() error {
	row, err := w.row.take()
	if err != nil {
		return err
	}
	w.pending = append(w.pending, row)
	return nil
}

func (w *sqliteWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	tx, err := w.journal.db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	now := time.Now().UnixNano()
	for _, row := range w.pending {
		encoded, err := json.Marshal(asRecord(Columns, row))
		if err != nil {
			_ = tx.Rollback()
			return errors.WithStack(err)
		}
		if _, err := tx.Exec("INSERT INTO journal (queue, row, inserted) VALUES (?, ?, ?)", w.journal.queue, string(encoded), now); err != nil {
			_ = tx.Rollback()
			return errors.WithStack(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WithStack(err)
	}
	w.pending = nil
	return nil
}

func (w *sqliteWriter) Close() error {
	return w.Flush()
}

// addEncodedRow decodes a row stored as a json object keyed by column name.
func addEncodedRow(reader *bufferedReader, encoded string) {
	var record map[string]string
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		reader.addMalformed("invalid json: " + err.Error())
		return
	}
	row, err := fromRecord(Columns, record)
	if err != nil {
		reader.addMalformed(err.Error())
		return
	}
	reader.add(row)
}

// Clear deletes every row of this queue.
func (j *SQLiteJournal) Clear(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, "DELETE FROM journal WHERE queue = ?", j.queue)
	return errors.WithStack(err)
}
