package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
)

// Producer is the subset of pulsar.Producer used by the mirror.
type Producer interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Flush() error
	Close()
}

// PulsarMirror publishes every flushed row to a pulsar topic. It is write only; downstream
// consumers can follow queue progress without touching the master. Messages are keyed by queue.
type PulsarMirror struct {
	producer Producer
	queue    string
	timeout  time.Duration
	row      *rowBuffer
	pending  [][]string
}

func NewPulsarMirror(producer Producer, queue string, sendTimeout time.Duration) *PulsarMirror {
	return &PulsarMirror{
		producer: producer,
		queue:    queue,
		timeout:  sendTimeout,
		row:      newRowBuffer(Columns),
	}
}

func (m *PulsarMirror) Set(column, value string) error {
	return m.row.Set(column, value)
}

func (m *PulsarMirror) EmitRow() error {
	row, err := m.row.take()
	if err != nil {
		return err
	}
	m.pending = append(m.pending, row)
	return nil
}

func (m *PulsarMirror) Flush() error {
	if len(m.pending) == 0 {
		return nil
	}
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	for len(m.pending) > 0 {
		record := asRecord(Columns, m.pending[0])
		payload, err := json.Marshal(record)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = m.producer.Send(ctx, &pulsar.ProducerMessage{
			Key:        m.queue,
			Payload:    payload,
			Properties: map[string]string{"queue": m.queue, ColumnStatus: record[ColumnStatus]},
		})
		if err != nil {
			return errors.Wrapf(err, "error publishing journal row for queue %s", m.queue)
		}
		m.pending = m.pending[1:]
	}
	return nil
}

func (m *PulsarMirror) Close() error {
	err := m.Flush()
	if flushErr := m.producer.Flush(); err == nil && flushErr != nil {
		err = errors.WithStack(flushErr)
	}
	m.producer.Close()
	return err
}
