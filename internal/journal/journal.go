// Package journal persists the assignment and completion events of a dispatch queue and reads them
// back for replay. Every backend exposes the same row oriented Writer and Reader so the scheduler
// does not depend on how events are stored.
package journal

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
)

const (
	ColumnJobId  = "jobId"
	ColumnStatus = "status"

	StatusAssigned = "assigned"
	StatusDone     = "done"
)

// Columns is the layout of every journal.
var Columns = []string{ColumnJobId, ColumnStatus}

// Writer appends rows. Values set for a row become visible to readers only once the row has been
// emitted and the writer flushed.
type Writer interface {
	Set(column, value string) error
	EmitRow() error
	Flush() error
	Close() error
}

// Reader iterates the rows of a journal in the order they were written.
type Reader interface {
	HasNext() bool
	// Next advances to the next row. A row that cannot be decoded yields *ErrMalformedRow; the
	// reader stays usable and the following call moves past it.
	Next() error
	Get(column string) (string, error)
	Close() error
}

// Entry is a decoded journal row.
type Entry struct {
	JobId  int64
	Status string
}

// ErrMalformedRow is returned for rows that cannot be decoded into an Entry.
type ErrMalformedRow struct {
	Row    int
	Reason string
}

func (err *ErrMalformedRow) Error() string {
	return "malformed journal row " + strconv.Itoa(err.Row) + ": " + err.Reason
}

// Append writes a single event and flushes it before returning.
func Append(w Writer, jobId int64, status string) error {
	if err := w.Set(ColumnJobId, strconv.FormatInt(jobId, 10)); err != nil {
		return err
	}
	if err := w.Set(ColumnStatus, status); err != nil {
		return err
	}
	if err := w.EmitRow(); err != nil {
		return err
	}
	return w.Flush()
}

// ReadEntry decodes the current row of r. row is only used to annotate errors.
func ReadEntry(r Reader, row int) (Entry, error) {
	idText, err := r.Get(ColumnJobId)
	if err != nil {
		return Entry{}, &ErrMalformedRow{Row: row, Reason: err.Error()}
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return Entry{}, &ErrMalformedRow{Row: row, Reason: "job id " + strconv.Quote(idText) + " is not an integer"}
	}
	status, err := r.Get(ColumnStatus)
	if err != nil {
		return Entry{}, &ErrMalformedRow{Row: row, Reason: err.Error()}
	}
	return Entry{JobId: id, Status: status}, nil
}

// rowBuffer collects the values of the row being written.
type rowBuffer struct {
	columns []string
	index   map[string]int
	values  []string
	set     []bool
}

func newRowBuffer(columns []string) *rowBuffer {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &rowBuffer{
		columns: columns,
		index:   index,
		values:  make([]string, len(columns)),
		set:     make([]bool, len(columns)),
	}
}

func (b *rowBuffer) Set(column, value string) error {
	i, ok := b.index[column]
	if !ok {
		return errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "column",
			Value:   column,
			Message: "not a journal column",
		})
	}
	b.values[i] = value
	b.set[i] = true
	return nil
}

// take returns the completed row and resets the buffer. Every column must have been set.
func (b *rowBuffer) take() ([]string, error) {
	for i, ok := range b.set {
		if !ok {
			return nil, errors.Errorf("journal column %q was not set before emitting the row", b.columns[i])
		}
	}
	row := b.values
	b.values = make([]string, len(b.columns))
	b.set = make([]bool, len(b.columns))
	return row, nil
}

func asRecord(columns []string, row []string) map[string]string {
	record := make(map[string]string, len(columns))
	for i, c := range columns {
		record[c] = row[i]
	}
	return record
}

func fromRecord(columns []string, record map[string]string) ([]string, error) {
	row := make([]string, len(columns))
	for i, c := range columns {
		v, ok := record[c]
		if !ok {
			return nil, errors.Errorf("missing column %q", c)
		}
		row[i] = v
	}
	return row, nil
}

// bufferedReader serves rows that were loaded up front by a database backed journal.
type bufferedReader struct {
	columns map[string]int
	rows    [][]string
	errs    map[int]error
	pos     int
	current []string
}

func newBufferedReader(columns []string) *bufferedReader {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &bufferedReader{columns: index, errs: map[int]error{}, pos: -1}
}

func (r *bufferedReader) add(row []string) {
	r.rows = append(r.rows, row)
}

func (r *bufferedReader) addMalformed(reason string) {
	r.errs[len(r.rows)] = &ErrMalformedRow{Row: len(r.rows) + 1, Reason: reason}
	r.rows = append(r.rows, nil)
}

func (r *bufferedReader) HasNext() bool {
	return r.pos+1 < len(r.rows)
}

func (r *bufferedReader) Next() error {
	if !r.HasNext() {
		return errors.New("no more journal rows")
	}
	r.pos++
	r.current = r.rows[r.pos]
	if err, ok := r.errs[r.pos]; ok {
		r.current = nil
		return err
	}
	if len(r.current) != len(r.columns) {
		r.current = nil
		return &ErrMalformedRow{Row: r.pos + 1, Reason: "expected " + strconv.Itoa(len(r.columns)) + " values"}
	}
	return nil
}

func (r *bufferedReader) Get(column string) (string, error) {
	if r.current == nil {
		return "", errors.New("no current journal row")
	}
	i, ok := r.columns[column]
	if !ok {
		return "", errors.Errorf("unknown journal column %q", column)
	}
	return r.current[i], nil
}

func (r *bufferedReader) Close() error {
	return nil
}
