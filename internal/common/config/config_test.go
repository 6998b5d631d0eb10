package config

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobIds(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected JobIds
		err      bool
	}{
		"single":          {input: "7", expected: JobIds{7}},
		"list":            {input: "1, 3,5", expected: JobIds{1, 3, 5}},
		"range":           {input: "10-13", expected: JobIds{10, 11, 12, 13}},
		"mixed":           {input: "1,4-5,9", expected: JobIds{1, 4, 5, 9}},
		"negative single": {input: "-3", expected: JobIds{-3}},
		"empty":           {input: "", expected: JobIds{}},
		"backwards range": {input: "5-1", err: true},
		"garbage":         {input: "1,x", err: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ids, err := ParseJobIds(tc.input)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids)
		})
	}
}

type hookedConfig struct {
	Ids JobIds
}

func TestCustomHooks_DecodeJobIdString(t *testing.T) {
	v := viper.New()
	v.Set("ids", "2-4,8")

	var cfg hookedConfig
	require.NoError(t, v.Unmarshal(&cfg, CustomHooks...))
	assert.Equal(t, JobIds{2, 3, 4, 8}, cfg.Ids)
}

type validatedConfig struct {
	Queue string `validate:"required"`
	Port  uint16 `validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	err := Validate(validatedConfig{})
	require.Error(t, err)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
	assert.Len(t, validationErrors, 2)
	LogValidationErrors(err)

	assert.NoError(t, Validate(validatedConfig{Queue: "experiments", Port: 50325}))
}
