package journal

import (
	"github.com/hashicorp/go-multierror"
)

// MultiWriter duplicates every row to all of its writers. Every writer is attempted even if an
// earlier one fails; the failures are returned together.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Set(column, value string) error {
	return m.each(func(w Writer) error { return w.Set(column, value) })
}

func (m *MultiWriter) EmitRow() error {
	return m.each(func(w Writer) error { return w.EmitRow() })
}

func (m *MultiWriter) Flush() error {
	return m.each(func(w Writer) error { return w.Flush() })
}

func (m *MultiWriter) Close() error {
	return m.each(func(w Writer) error { return w.Close() })
}

func (m *MultiWriter) each(f func(w Writer) error) error {
	var result *multierror.Error
	for _, w := range m.writers {
		if err := f(w); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
