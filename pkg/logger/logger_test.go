package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "payrank.log")

	cfg := &Config{
		Level:      "debug",
		Service:    "payrank",
		Instance:   "node-1",
		Filename:   filename,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}

	require.NoError(t, InitLogger(cfg))
	t.Cleanup(func() { Log = zap.NewNop() })

	Log.Info("payment settled", zap.String("reference", "demo_abc"))
	Sync()

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"payrank"`)
	assert.Contains(t, string(data), `"instance":"node-1"`)
	assert.Contains(t, string(data), `"reference":"demo_abc"`)
	assert.Contains(t, string(data), `"level":"INFO"`)
}

func TestInitLoggerInvalidConfig(t *testing.T) {
	before := Log

	err := InitLogger(&Config{Level: "INVALID"})
	assert.Error(t, err)
	assert.Same(t, before, Log)

	err = InitLogger(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
	assert.Same(t, before, Log)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"warn", "WARN", "Warn", " warn "} {
		l, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, zapcore.WarnLevel, l)
	}
}

func TestConsoleFormatWithoutFile(t *testing.T) {
	l, err := New(&Config{Level: "info", Format: FormatConsole})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
