package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transactional-email/internal/logger"
)

func TestNewSetsGlobalLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		"Warn":     zerolog.WarnLevel,
		"ERROR":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
	}

	for input, want := range cases {
		t.Run("level_"+input, func(t *testing.T) {
			prev := zerolog.GlobalLevel()
			t.Cleanup(func() {
				zerolog.SetGlobalLevel(prev)
			})

			var buf bytes.Buffer
			_, err := logger.New("production", input, &buf)
			require.NoError(t, err)
			assert.Equal(t, want, zerolog.GlobalLevel())
		})
	}
}

func TestNewInvalidLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prev)
	})

	_, err := logger.New("production", "not-a-level")
	require.Error(t, err)
}

func TestComponentTagsEntries(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prev)
	})

	var buf bytes.Buffer
	base, err := logger.New("production", "info", &buf)
	require.NoError(t, err)

	log := logger.Component(*base, "outcome")
	log.Info().Str("email", "a@b.com").Msg("sent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "outcome", entry["component"])
	assert.Equal(t, "a@b.com", entry["email"])
	assert.Equal(t, "sent", entry["message"])
}
