package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brizzai/authlab/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "console", cfg: config.LoggingConfig{Level: "info", Format: "console"}},
		{name: "json", cfg: config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Level: "info", Format: "xml"}, wantErr: true},
		{name: "no outputs", cfg: config.LoggingConfig{Level: "info", DisableConsole: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "authlab.log")
	l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", OutputPath: path, DisableConsole: true})
	require.NoError(t, err)

	l.Info("hello", zap.String("provider", "github"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"provider":"github"`)
}

func TestGlobalHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Warn("refresh failed", Provider("discord"), UserID("42"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "refresh failed", entries[0].Message)
	assert.Equal(t, "discord", entries[0].ContextMap()["provider"])
	assert.Equal(t, "42", entries[0].ContextMap()["user_id"])
}
