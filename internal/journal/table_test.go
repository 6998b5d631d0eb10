package journal

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableWriter_WritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewTableWriter(&buf, Columns, true)
	require.NoError(t, err)

	require.NoError(t, Append(w, 10, StatusAssigned))
	require.NoError(t, Append(w, 10, StatusDone))

	assert.Equal(t, "jobId status\n10 assigned\n10 done\n", buf.String())
}

func TestTableWriter_RejectsIncompleteRow(t *testing.T) {
	w, err := NewTableWriter(&bytes.Buffer{}, Columns, true)
	require.NoError(t, err)

	require.NoError(t, w.Set(ColumnJobId, "1"))
	assert.Error(t, w.EmitRow())
}

func TestTableWriter_RejectsBadValues(t *testing.T) {
	w, err := NewTableWriter(&bytes.Buffer{}, Columns, true)
	require.NoError(t, err)

	assert.Error(t, w.Set(ColumnStatus, "not done"))
	assert.Error(t, w.Set(ColumnStatus, ""))
	assert.Error(t, w.Set("experiment", "1"))
}

func TestTableReader_ReadsRows(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("jobId status\n1 assigned\n\n1 done\n2 assigned\n"), Columns)
	require.NoError(t, err)

	assert.Equal(t, []Entry{{1, StatusAssigned}, {1, StatusDone}, {2, StatusAssigned}}, readAll(t, r))
}

func TestTableReader_HeaderlessTableUsesFallbackColumns(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("5 done\n6 assigned\n"), Columns)
	require.NoError(t, err)

	assert.Equal(t, Columns, r.Columns())
	assert.Equal(t, []Entry{{5, StatusDone}, {6, StatusAssigned}}, readAll(t, r))
}

func TestTableReader_ColumnOrderFollowsHeader(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("status jobId\ndone 4\n"), Columns)
	require.NoError(t, err)

	assert.Equal(t, []Entry{{4, StatusDone}}, readAll(t, r))
}

func TestTableReader_WidthChangeIsMalformed(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("jobId status\n1 done extra\n2 done\n"), Columns)
	require.NoError(t, err)

	require.True(t, r.HasNext())
	err = r.Next()
	var malformed *ErrMalformedRow
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.Row)

	require.True(t, r.HasNext())
	require.NoError(t, r.Next())
	entry, err := ReadEntry(r, 2)
	require.NoError(t, err)
	assert.Equal(t, Entry{2, StatusDone}, entry)
	assert.False(t, r.HasNext())
}

func TestTableReader_OverlongLineIsMalformed(t *testing.T) {
	content := "jobId status\n1 done\n" + strings.Repeat("\x00", MaxLineLength+6*1024) + "\n2 done\n"
	r, err := NewTableReader(strings.NewReader(content), Columns)
	require.NoError(t, err)

	require.NoError(t, r.Next())
	entry, err := ReadEntry(r, 1)
	require.NoError(t, err)
	assert.Equal(t, Entry{1, StatusDone}, entry)

	require.True(t, r.HasNext())
	err = r.Next()
	var malformed *ErrMalformedRow
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Row)

	require.NoError(t, r.Next())
	entry, err = ReadEntry(r, 3)
	require.NoError(t, err)
	assert.Equal(t, Entry{2, StatusDone}, entry)
	assert.False(t, r.HasNext())
}

func TestTableReader_LongLineWithinLimit(t *testing.T) {
	padding := strings.Repeat(" ", MaxLineLength-len("1 done\n"))
	r, err := NewTableReader(strings.NewReader("jobId status\n1 done"+padding+"\n"), Columns)
	require.NoError(t, err)

	assert.Equal(t, []Entry{{1, StatusDone}}, readAll(t, r))
}

func TestTableReader_ReadFailureIsReturnedAfterBufferedRow(t *testing.T) {
	failure := errors.New("disk gone")
	in := io.MultiReader(strings.NewReader("jobId status\n1 done\n"), iotest.ErrReader(failure))
	r, err := NewTableReader(in, Columns)
	require.NoError(t, err)

	require.NoError(t, r.Next())
	entry, err := ReadEntry(r, 1)
	require.NoError(t, err)
	assert.Equal(t, Entry{1, StatusDone}, entry)

	require.True(t, r.HasNext())
	assert.ErrorIs(t, r.Next(), failure)
	assert.False(t, r.HasNext())
}

func TestTableReader_LastLineWithoutNewline(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("jobId status\n1 done\n2 done"), Columns)
	require.NoError(t, err)

	assert.Equal(t, []Entry{{1, StatusDone}, {2, StatusDone}}, readAll(t, r))
}

func TestReadEntry_NonIntegerId(t *testing.T) {
	r, err := NewTableReader(strings.NewReader("jobId status\nabc done\n"), Columns)
	require.NoError(t, err)
	require.NoError(t, r.Next())

	_, err = ReadEntry(r, 1)
	var malformed *ErrMalformedRow
	assert.ErrorAs(t, err, &malformed)
}

func TestOpenTableWriter_AppendKeepsSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.log")

	w, err := OpenTableWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, Append(w, 1, StatusDone))
	require.NoError(t, w.Close())

	w, err = OpenTableWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, Append(w, 2, StatusDone))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jobId status\n1 done\n2 done\n", string(content))
}

func TestOpenTableWriter_TruncatesWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.log")
	require.NoError(t, os.WriteFile(path, []byte("jobId status\n1 done\n"), 0o644))

	w, err := OpenTableWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, Append(w, 3, StatusAssigned))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jobId status\n3 assigned\n", string(content))
}

func readAll(t *testing.T, r Reader) []Entry {
	t.Helper()
	var entries []Entry
	row := 0
	for r.HasNext() {
		row++
		require.NoError(t, r.Next())
		entry, err := ReadEntry(r, row)
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}
