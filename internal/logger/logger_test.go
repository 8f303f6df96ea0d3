package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel logrus.Level
	}{
		{name: "debug", level: "debug", wantLevel: logrus.DebugLevel},
		{name: "warn", level: "warn", wantLevel: logrus.WarnLevel},
		{name: "unknown falls back to info", level: "loud", wantLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Level = tt.level
			log, err := New(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.Format = "json"
	cfg.Directory = filepath.Join(t.TempDir(), "logs")

	log, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	Component(log, "test").Info("hello")

	data, err := os.ReadFile(filepath.Join(cfg.Directory, cfg.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}
