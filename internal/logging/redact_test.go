package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/supplierd/internal/config"
)

func newTestRedactor(t *testing.T) *RedactingEncoder {
	t.Helper()
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	return enc
}

func TestRedactingEncoder_RedactValue(t *testing.T) {
	enc := newTestRedactor(t)

	tests := map[string]string{
		"https://api.example.com/v1?key=abc123&q=Tesco": "https://api.example.com/v1?key=[REDACTED]&q=Tesco",
		"https://api.example.com/v1?q=x&api_key=abc":    "https://api.example.com/v1?q=x&api_key=[REDACTED]",
		"Authorization: Bearer sk-ant-123":              "Authorization: [REDACTED]",
		"Tesco suppliers include Acme Foods":            "Tesco suppliers include Acme Foods",
		"monkey=business":                               "monkey=business",
	}
	for in, want := range tests {
		assert.Equal(t, want, enc.redactValue(in), in)
	}
}

func TestRedactingEncoder_RedactField(t *testing.T) {
	enc := newTestRedactor(t)

	assert.Equal(t, "[REDACTED]", enc.redactField(zap.String("API_KEY", "x")).String)
	assert.Equal(t, "[REDACTED]", enc.redactField(zap.Int("token", 42)).String)

	f := enc.redactField(zap.Error(errors.New("GET /search?key=abc failed")))
	assert.Equal(t, zapcore.StringType, f.Type)
	assert.Equal(t, "GET /search?key=[REDACTED] failed", f.String)

	count := zap.Int("count", 3)
	assert.Equal(t, count, enc.redactField(count))
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled: false,
		Fields:  []string{"api_key"},
	})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "hello"}, []zapcore.Field{zap.String("api_key", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[unclosed"},
	})
	assert.Error(t, err)
}

func TestRedactingEncoder_EncodeEntry(t *testing.T) {
	enc := newTestRedactor(t)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "calling ?key=abc123"}, []zapcore.Field{
		zap.String("secret", "hunter2"),
		zap.String("company", "Tesco"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "Tesco")
}

func TestRedactingEncoder_Clone(t *testing.T) {
	enc := newTestRedactor(t)
	enc.AddString("api_key", "abc")

	clone, ok := enc.Clone().(*RedactingEncoder)
	require.True(t, ok)
	assert.True(t, clone.shouldRedactKey("Authorization"))
}

func TestSecretField(t *testing.T) {
	logger := NewTestLogger()
	logger.Info("configured", Secret("llm", config.Secret("sk-12345")), RedactedString("engine", "cx-abc"))

	entries := logger.FilterMessage("configured").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, map[string]interface{}{"llm": "[REDACTED:8]"}, ctx["llm"])
	assert.Equal(t, "[REDACTED:6]", ctx["engine"])
}
