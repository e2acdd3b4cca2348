package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "abc", "pack_id", "sci-6", "max_tokens", 256})
	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "pack_id", "sci-6", "max_tokens", 256}, out)
}

func TestSanitizeKVs_HashesSessionID(t *testing.T) {
	out := sanitizeKVs([]interface{}{"session_id", "01HX"})
	v, ok := out[1].(string)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(v, "hash:"))
	assert.Len(t, v, len("hash:")+12)
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, []interface{}{"a", 1, "dangling"}, out)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("ignored", "k", "v")
	l.With("component", "x").Warn("ignored")
}
