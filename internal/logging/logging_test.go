package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(level, "json")
		require.NoError(t, err, level)
		require.NotNil(t, logger)
	}
}

func TestNewFormats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		_, err := New("info", format)
		require.NoError(t, err, format)
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("api_key", "sk-abcdef")
	assert.Equal(t, "api_key", f.Key)
	assert.Equal(t, "[REDACTED:9]", f.String)
}
