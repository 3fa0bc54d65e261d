package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesFile(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	path := filepath.Join(t.TempDir(), "gateway.log")
	Setup(false, &FileOutput{Path: path, MaxSizeMB: 1})

	Debug().Msg("hidden")
	Info().Str("method", "celerPayModule_getPoolId").Msg("visible")
	require.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "visible")
	require.Contains(t, string(data), "celerPayModule_getPoolId")
	require.NotContains(t, string(data), "hidden")

	Setup(true, nil)
	require.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}
