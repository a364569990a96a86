package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	Init(false, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := For("launcher")
	logger.Info().Str("target", "nplb").Msg("starting")
	logger.Debug().Msg("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "launcher", entry["module"])
	require.Equal(t, "nplb", entry["target"])
	require.Equal(t, "starting", entry["message"])
	require.Contains(t, entry, "time")
	require.NotContains(t, buf.String(), "hidden")
}

func TestInit_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(true, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := For("ssh")
	logger.Debug().Msg("dialing")
	require.Contains(t, buf.String(), "dialing")
}
