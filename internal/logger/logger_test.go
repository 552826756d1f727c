package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	log := New(Config{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	log = New(Config{Level: "bogus"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rift.log")
	log := New(Config{Level: "info", Output: path, MaxSize: 1})

	WithComponent(log, "test").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=test")
	assert.Contains(t, string(data), "hello")
}
