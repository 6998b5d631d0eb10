package journal

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const fieldSeparator = " "

// MaxLineLength bounds a table line. Longer lines are reported as malformed rows.
const MaxLineLength = 64 * 1024

// TableWriter writes the journal as whitespace separated text, one row per line, preceded by a
// header line naming the columns.
type TableWriter struct {
	out    *bufio.Writer
	file   io.Closer
	sync   func() error
	row    *rowBuffer
	closed bool
}

// NewTableWriter writes to w. The header is written unless the table is being appended to.
func NewTableWriter(w io.Writer, columns []string, writeHeader bool) (*TableWriter, error) {
	t := &TableWriter{
		out: bufio.NewWriter(w),
		row: newRowBuffer(columns),
	}
	if c, ok := w.(io.Closer); ok {
		t.file = c
	}
	if f, ok := w.(*os.File); ok {
		t.sync = f.Sync
	}
	if writeHeader {
		if err := t.writeLine(columns); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// OpenTableWriter opens path for writing. In append mode existing rows are kept and the header is
// only written if the file is empty.
func OpenTableWriter(path string, appendMode bool) (*TableWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}
	return NewTableWriter(f, Columns, info.Size() == 0)
}

func (t *TableWriter) Set(column, value string) error {
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return errors.Errorf("value %q for column %q cannot be stored in a table", value, column)
	}
	return t.row.Set(column, value)
}

func (t *TableWriter) EmitRow() error {
	row, err := t.row.take()
	if err != nil {
		return err
	}
	return t.writeLine(row)
}

func (t *TableWriter) Flush() error {
	if err := t.out.Flush(); err != nil {
		return errors.WithStack(err)
	}
	if t.sync != nil {
		return errors.WithStack(t.sync())
	}
	return nil
}

func (t *TableWriter) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.Flush()
	if t.file != nil {
		if closeErr := t.file.Close(); err == nil {
			err = errors.WithStack(closeErr)
		}
	}
	return err
}

func (t *TableWriter) writeLine(values []string) error {
	_, err := t.out.WriteString(strings.Join(values, fieldSeparator) + "\n")
	return errors.WithStack(err)
}

// TableReader reads tables produced by TableWriter. A table whose first line is numeric has no
// header; its columns are then taken to be the fallback columns given to the reader.
type TableReader struct {
	in      *bufio.Reader
	file    io.Closer
	header  map[string]int
	width   int
	next    *tableLine
	readErr error
	current []string
	row     int
}

type tableLine struct {
	fields  []string
	tooLong bool
}

func NewTableReader(r io.Reader, fallbackColumns []string) (*TableReader, error) {
	t := &TableReader{in: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		t.file = c
	}
	if err := t.readAhead(); err != nil {
		return nil, err
	}
	columns := fallbackColumns
	if t.next != nil && !t.next.tooLong && !startsWithInteger(t.next.fields) {
		columns = t.next.fields
		if err := t.readAhead(); err != nil {
			return nil, err
		}
	}
	t.header = make(map[string]int, len(columns))
	for i, c := range columns {
		t.header[c] = i
	}
	t.width = len(columns)
	return t, nil
}

// OpenTableReader opens the table stored at path.
func OpenTableReader(path string) (*TableReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	r, err := NewTableReader(f, Columns)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Columns returns the column names in table order.
func (t *TableReader) Columns() []string {
	columns := make([]string, t.width)
	for c, i := range t.header {
		columns[i] = c
	}
	return columns
}

func (t *TableReader) HasNext() bool {
	return t.next != nil || t.readErr != nil
}

// Next moves to the buffered row. A read failure hit while buffering the row after it is returned
// by the following call.
func (t *TableReader) Next() error {
	t.current = nil
	if t.next == nil {
		if t.readErr != nil {
			err := t.readErr
			t.readErr = nil
			return err
		}
		return errors.New("no more journal rows")
	}
	t.row++
	line := t.next
	t.readErr = t.readAhead()
	switch {
	case line.tooLong:
		return &ErrMalformedRow{Row: t.row, Reason: "line longer than " + strconv.Itoa(MaxLineLength) + " bytes"}
	case len(line.fields) != t.width:
		return &ErrMalformedRow{Row: t.row, Reason: "table width changed from " + strconv.Itoa(t.width) + " to " + strconv.Itoa(len(line.fields))}
	}
	t.current = line.fields
	return nil
}

func (t *TableReader) Get(column string) (string, error) {
	if t.current == nil {
		return "", errors.New("no current journal row")
	}
	i, ok := t.header[column]
	if !ok {
		return "", errors.Errorf("unknown journal column %q", column)
	}
	return t.current[i], nil
}

func (t *TableReader) Close() error {
	if t.file == nil {
		return nil
	}
	return errors.WithStack(t.file.Close())
}

// readAhead buffers the next non-blank line, or nil at end of input.
func (t *TableReader) readAhead() error {
	t.next = nil
	for {
		line, tooLong, err := t.readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if tooLong {
			t.next = &tableLine{tooLong: true}
			return nil
		}
		if fields := strings.Fields(string(line)); len(fields) > 0 {
			t.next = &tableLine{fields: fields}
			return nil
		}
	}
}

// readLine returns the next line. The content of a line over MaxLineLength is discarded and only
// tooLong is set. io.EOF is returned once no bytes are left.
func (t *TableReader) readLine() (line []byte, tooLong bool, err error) {
	read := false
	for {
		chunk, readErr := t.in.ReadSlice('\n')
		read = read || len(chunk) > 0
		if !tooLong {
			if len(line)+len(chunk) > MaxLineLength {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case readErr == bufio.ErrBufferFull:
			continue
		case readErr == io.EOF && !read:
			return nil, false, io.EOF
		case readErr == io.EOF || readErr == nil:
			return line, tooLong, nil
		default:
			return nil, false, errors.WithStack(readErr)
		}
	}
}

func startsWithInteger(fields []string) bool {
	_, err := strconv.ParseInt(fields[0], 10, 64)
	return err == nil
}
