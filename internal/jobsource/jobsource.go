// Package jobsource produces the fixed, ordered set of job ids a dispatch queue hands out.
package jobsource

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	commonconfig "github.com/G-Research/dispatch/internal/common/config"
	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
)

const (
	ModeInterval = "interval"
	ModeIdList   = "idlist"
	ModeIdFile   = "idfile"
)

// Sequence is a finite, non-empty source of job ids.
type Sequence interface {
	Ids() ([]int64, error)
}

type Config struct {
	Mode string `validate:"oneof=interval idlist idfile"`
	// Inclusive bounds used in interval mode.
	Start int64
	End   int64
	// Ids used in idlist mode.
	Ids commonconfig.JobIds
	// File read in idfile mode: one id per line, # starts a comment.
	Path string
}

// New returns the sequence selected by config.
func New(config Config) (Sequence, error) {
	switch config.Mode {
	case ModeInterval:
		return Interval{Start: config.Start, End: config.End}, nil
	case ModeIdList:
		return IdList{Values: config.Ids}, nil
	case ModeIdFile:
		return IdFile{Path: config.Path}, nil
	default:
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "jobs.mode",
			Value:   config.Mode,
			Message: "expected one of interval, idlist or idfile",
		})
	}
}

// MaxIntervalLength bounds the number of ids an Interval may yield.
const MaxIntervalLength = 10_000_000

// Interval yields every id from Start to End inclusive.
type Interval struct {
	Start int64
	End   int64
}

func (s Interval) Ids() ([]int64, error) {
	if s.End < s.Start {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "jobs.end",
			Value:   s.End,
			Message: "interval end must not be before its start " + strconv.FormatInt(s.Start, 10),
		})
	}
	// Unsigned so that spans wider than the int64 range don't wrap.
	if span := uint64(s.End) - uint64(s.Start); span >= MaxIntervalLength {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "jobs.end",
			Value:   s.End,
			Message: "interval starting at " + strconv.FormatInt(s.Start, 10) + " exceeds " + strconv.Itoa(MaxIntervalLength) + " jobs",
		})
	}
	n := s.End - s.Start + 1
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.Start + int64(i)
	}
	return ids, nil
}

// IdList yields an explicit list of ids, sorted.
type IdList struct {
	Values []int64
}

func (s IdList) Ids() ([]int64, error) {
	return normalise(append([]int64(nil), s.Values...), "jobs.ids")
}

// IdFile reads ids from a text file.
type IdFile struct {
	Path string
}

func (s IdFile) Ids() ([]int64, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, field := range strings.Fields(text) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, errors.Errorf("%s:%d: %q is not a job id", s.Path, line, field)
			}
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return normalise(ids, "jobs.path")
}

// normalise sorts ids and rejects empty or duplicated sets.
func normalise(ids []int64, field string) ([]int64, error) {
	if len(ids) == 0 {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    field,
			Value:   ids,
			Message: "no job ids given",
		})
	}
	slices.Sort(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
				Name:    field,
				Value:   ids[i],
				Message: "duplicate job id",
			})
		}
	}
	return ids, nil
}
