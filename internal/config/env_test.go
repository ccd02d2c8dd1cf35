// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	t.Setenv("TEST_STRING", "from-env")
	t.Setenv("TEST_STRING_EMPTY", "")

	assert.Equal(t, "from-env", ParseString("TEST_STRING", "default"))
	assert.Equal(t, "default", ParseString("TEST_STRING_EMPTY", "default"))
	assert.Equal(t, "default", ParseString("TEST_STRING_UNSET", "default"))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"No", false},
		{"off", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, ParseBool("TEST_BOOL", !tt.want))
		})
	}

	t.Run("invalid keeps default", func(t *testing.T) {
		t.Setenv("TEST_BOOL", "maybe")
		assert.True(t, ParseBool("TEST_BOOL", true))
	})
}

func TestParseNumbers(t *testing.T) {
	t.Setenv("TEST_INT", " 42 ")
	t.Setenv("TEST_INT_BAD", "4x2")
	t.Setenv("TEST_INT64", "5368709120")
	t.Setenv("TEST_FLOAT", "0.5")

	assert.Equal(t, 42, ParseInt("TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("TEST_INT_BAD", 1))
	assert.Equal(t, 1, ParseInt("TEST_INT_UNSET", 1))
	assert.Equal(t, int64(5<<30), ParseInt64("TEST_INT64", 0))
	assert.InDelta(t, 0.5, ParseFloat("TEST_FLOAT", 1), 1e-9)
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "1m30s")
	t.Setenv("TEST_DUR_BAD", "90")

	assert.Equal(t, 90*time.Second, ParseDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("TEST_DUR_BAD", time.Second))
}
