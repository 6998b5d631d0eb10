package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
)

// PostgresJournal stores rows of all queues in one postgres table, created on first use.
type PostgresJournal struct {
	db        *pgxpool.Pool
	tableName string
	queue     string
}

func NewPostgresJournal(db *pgxpool.Pool, tableName string, queue string) (*PostgresJournal, error) {
	if db == nil {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if tableName == "" {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "tableName",
			Value:   tableName,
			Message: "tableName must be non-empty",
		})
	}
	return &PostgresJournal{db: db, tableName: tableName, queue: queue}, nil
}

func (j *PostgresJournal) Reader(ctx context.Context) (Reader, error) {
	reader := newBufferedReader(Columns)
	sql := fmt.Sprintf("select row from %s where queue=$1 order by seq", j.tableName)
	rows, err := j.db.Query(ctx, sql, j.queue)
	if isUndefinedTable(err) {
		// Nothing has been journalled yet.
		return reader, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	for rows.Next() {
		var row []string
		if err := rows.Scan(&row); err != nil {
			reader.addMalformed(err.Error())
			continue
		}
		reader.add(row)
	}
	if err := rows.Err(); err != nil && !isUndefinedTable(err) {
		return nil, errors.WithStack(err)
	}
	return reader, nil
}

func (j *PostgresJournal) Writer(ctx context.Context) Writer {
	return &postgresWriter{ctx: ctx, journal: j, row: newRowBuffer(Columns)}
}

func (j *PostgresJournal) createTable(ctx context.Context) error {
	var pgErr *pgconn.PgError
	_, err := j.db.Exec(ctx, fmt.Sprintf(
		"create table %s (seq bigserial primary key, queue text not null, row text[] not null, inserted timestamp not null);",
		j.tableName))
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateTable { // Someone else just created it, which is fine.
		return nil
	}
	return err
}

func (j *PostgresJournal) insert(ctx context.Context, rows [][]string) error {
	return j.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		sql := fmt.Sprintf("insert into %s (queue, row, inserted) values ($1, $2, now());", j.tableName)
		for _, row := range rows {
			if _, err := tx.Exec(ctx, sql, j.queue, row); err != nil {
				return err
			}
		}
		return nil
	})
}

type postgresWriter struct {
	ctx     context.Context
	journal *PostgresJournal
	row     *rowBuffer
	pending [][]string
}

func (w *postgresWriter) Set(column, value string) error {
	return w.row.Set(column, value)
}

func (w *postgresWriter) EmitRow() error {
	row, err := w.row.take()
	if err != nil {
		return err
	}
	w.pending = append(w.pending, row)
	return nil
}

// Flush inserts pending rows in a single transaction. The table is created if it doesn't exist yet.
func (w *postgresWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	err := w.journal.insert(w.ctx, w.pending)
	if isUndefinedTable(err) {
		if err := w.journal.createTable(w.ctx); err != nil {
			return errors.WithStack(err)
		}
		err = w.journal.insert(w.ctx, w.pending)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	w.pending = nil
	return nil
}

func (w *postgresWriter) Close() error {
	return w.Flush()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// Clear deletes every row of this queue.
func (j *PostgresJournal) Clear(ctx context.Context) error {
	_, err := j.db.Exec(ctx, fmt.Sprintf("delete from %s where queue=$1", j.tableName), j.queue)
	if isUndefinedTable(err) {
		return nil
	}
	return errors.WithStack(err)
}
