package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_FileOutput(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	config := NewDefaultConfig()
	config.Logging.Output = []string{"file"}
	config.Logging.File = filepath.Join(t.TempDir(), "nested", "extracta.log")

	logger := InitLogger(config)
	require.NotNil(t, logger)
	assert.Equal(t, logger, GetLogger())
	assert.DirExists(t, filepath.Dir(config.Logging.File))
}

func TestInitLogger_ConsoleOnly(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	config := NewDefaultConfig()
	config.Logging.Output = []string{"stdout"}

	logger := InitLogger(config)
	require.NotNil(t, logger)
	assert.Equal(t, logger, GetLogger())
}

func TestGetLogFilePath_Nil(t *testing.T) {
	assert.Empty(t, GetLogFilePath(nil))
}
