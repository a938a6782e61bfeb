package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadersFallBackOnInvalidInput(t *testing.T) {
	t.Setenv("CFG_INT", "abc")
	t.Setenv("CFG_NEG", "-3")
	t.Setenv("CFG_FLOAT", "0.75")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_DUR", "90s")
	t.Setenv("CFG_STR", "  value  ")

	assert.Equal(t, 7, Int("CFG_INT", 7))
	assert.Equal(t, 7, Int("CFG_NEG", 7))
	assert.Equal(t, 7, Int("CFG_MISSING", 7))
	assert.InDelta(t, 0.75, Float("CFG_FLOAT", 0.1), 1e-9)
	assert.True(t, Bool("CFG_BOOL", false))
	assert.Equal(t, 90*time.Second, Duration("CFG_DUR", time.Minute))
	assert.Equal(t, "value", String("CFG_STR", "x"))
	assert.Equal(t, "x", String("CFG_UNSET", "x"))
}

func TestProduction(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	assert.True(t, Production())
	t.Setenv("APP_ENV", "development")
	assert.False(t, Production())
}
