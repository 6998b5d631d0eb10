package config

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// JobIds is a list of job ids. In config files it may be written either as a yaml list or as a
// string of comma separated ids and inclusive ranges, e.g. "1,2,10-20".
type JobIds []int64

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		JobIdsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

func JobIdsHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(JobIds{}) {
			return data, nil
		}
		return ParseJobIds(data.(string))
	}
}

// ParseJobIds parses comma separated ids and inclusive ranges.
func ParseJobIds(s string) (JobIds, error) {
	ids := JobIds{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, isRange := strings.Cut(part, "-"); isRange && lo != "" {
			start, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid range %q", part)
			}
			end, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid range %q", part)
			}
			if end < start {
				return nil, errors.Errorf("invalid range %q: end is before start", part)
			}
			for id := start; id <= end; id++ {
				ids = append(ids, id)
			}
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid job id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
