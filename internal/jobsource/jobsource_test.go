package jobsource

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
)

func TestNew(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(idFile, []byte("# experiments to rerun\n30\n10 20 # second batch\n\n"), 0o644))

	tests := map[string]struct {
		config   Config
		expected []int64
		err      bool
	}{
		"interval":          {config: Config{Mode: ModeInterval, Start: 3, End: 6}, expected: []int64{3, 4, 5, 6}},
		"single interval":   {config: Config{Mode: ModeInterval, Start: 0, End: 0}, expected: []int64{0}},
		"backwards":         {config: Config{Mode: ModeInterval, Start: 6, End: 3}, err: true},
		"top of range":      {config: Config{Mode: ModeInterval, Start: math.MaxInt64 - 2, End: math.MaxInt64}, expected: []int64{math.MaxInt64 - 2, math.MaxInt64 - 1, math.MaxInt64}},
		"whole range":       {config: Config{Mode: ModeInterval, Start: math.MinInt64, End: math.MaxInt64}, err: true},
		"too many jobs":     {config: Config{Mode: ModeInterval, Start: 1, End: MaxIntervalLength + 1}, err: true},
		"id list is sorted": {config: Config{Mode: ModeIdList, Ids: []int64{30, 10, 20}}, expected: []int64{10, 20, 30}},
		"empty id list":     {config: Config{Mode: ModeIdList}, err: true},
		"duplicate ids":     {config: Config{Mode: ModeIdList, Ids: []int64{1, 2, 1}}, err: true},
		"id file":           {config: Config{Mode: ModeIdFile, Path: idFile}, expected: []int64{10, 20, 30}},
		"missing id file":   {config: Config{Mode: ModeIdFile, Path: idFile + ".missing"}, err: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			seq, err := New(tc.config)
			require.NoError(t, err)
			ids, err := seq.Ids()
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(Config{Mode: "degree"})
	var invalid *dispatcherrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestIdFile_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\ntwo\n"), 0o644))

	_, err := IdFile{Path: path}.Ids()
	assert.ErrorContains(t, err, ":2:")
}

func TestIdList_DoesNotReorderCallerSlice(t *testing.T) {
	input := []int64{3, 1, 2}
	_, err := IdList{Values: input}.Ids()
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, input)
}

func TestInterval_LongestAllowed(t *testing.T) {
	ids, err := Interval{Start: 1, End: MaxIntervalLength}.Ids()
	require.NoError(t, err)
	assert.Len(t, ids, MaxIntervalLength)
	assert.Equal(t, int64(MaxIntervalLength), ids[len(ids)-1])
}
