package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultReturnsLogger(t *testing.T) {
	log := NewDefault()
	assert.NotNil(t, log)
}

func TestWithCIDAddsField(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	log := &Logger{zl: zl}

	tagged := log.WithCID("abcd1234")
	tagged.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"cid":"abcd1234"`)
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel("info"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNewUsesJSONFormatWithoutError(t *testing.T) {
	log, err := New(Config{Level: "warn", Format: "json"})
	assert.NoError(t, err)
	assert.NotNil(t, log)
}
