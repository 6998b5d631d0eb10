package journal

import (
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const redisKeyPrefix = "dispatch:journal:"

// RedisJournal keeps the rows of a queue in a redis list, oldest first.
type RedisJournal struct {
	db  redis.UniversalClient
	key string
}

func NewRedisJournal(db redis.UniversalClient, queue string) *RedisJournal {
	return &RedisJournal{db: db, key: redisKeyPrefix + queue}
}

func (j *RedisJournal) Reader() (Reader, error) {
	encodedRows, err := j.db.LRange(j.key, 0, -1).Result()
	if err != nil {
		return nil, errors.Errorf("[RedisJournal.Reader] error reading %s: %s", j.key, err)
	}
	reader := newBufferedReader(Columns)
	for _, encoded := range encodedRows {
		addEncodedRow(reader, encoded)
	}
	return reader, nil
}

// Writer returns a writer that pushes all rows emitted since the last flush in a single RPUSH.
func (j *RedisJournal) Writer() Writer {
	return &redisWriter{journal: j, row: newRowBuffer(Columns)}
}

// Clear deletes every row of the queue.
func (j *RedisJournal) Clear() error {
	if err := j.db.Del(j.key).Err(); err != nil {
		return errors.Errorf("[RedisJournal.Clear] error deleting %s: %s", j.key, err)
	}
	return nil
}

type redisWriter struct {
	journal *RedisJournal
	row     *rowBuffer
	pending []interface{}
}

func (w *redisWriter) Set(column, value string) error {
	return w.row.Set(column, value)
}

func (w *redisWriter) EmitRow() error {
	row, err := w.row.take()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(asRecord(Columns, row))
	if err != nil {
		return errors.WithStack(err)
	}
	w.pending = append(w.pending, string(encoded))
	return nil
}

func (w *redisWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.journal.db.RPush(w.journal.key, w.pending...).Err(); err != nil {
		return errors.Errorf("[RedisJournal.Flush] error pushing to %s: %s", w.journal.key, err)
	}
	w.pending = nil
	return nil
}

func (w *redisWriter) Close() error {
	return w.Flush()
}
