package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[world]
strict = true

[logging]
level = "debug"

[sim]
tick_rate = "10ms"
ticks = 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.World.Strict)
	require.Equal(t, 1024, cfg.World.InitialCapacity)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, 10*time.Millisecond, cfg.Sim.TickRate)
	require.Equal(t, 5, cfg.Sim.Ticks)
	require.Equal(t, "scripts", cfg.Scripting.Dir)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"syntax":       `[world`,
		"unknown key":  "[world]\nstrikt = true\n",
		"profile mode": "[profile]\nmode = \"gpu\"\n",
		"tick rate":    "[sim]\ntick_rate = \"0s\"\n",
		"capacity":     "[world]\ninitial_capacity = -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), name)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWorldOptions(t *testing.T) {
	cfg := Defaults()
	cfg.World.Strict = true
	w, err := ecs.NewWorld(cfg.WorldOptions(zap.NewNop())...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	require.True(t, w.Strict())
}
