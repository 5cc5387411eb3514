package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	name  string
	phase Phase
	log   *[]string
}

func (r recorder) Phase() Phase { return r.phase }

func (r recorder) Update(time.Duration) { *r.log = append(*r.log, r.name) }

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{"flush", PhaseCleanup, &log})
	r.Register(recorder{"script-a", PhaseUpdate, &log})
	r.Register(recorder{"events", PhaseInput, &log})
	r.Register(recorder{"script-b", PhaseUpdate, &log})
	require.Equal(t, 4, r.Len())

	r.Tick(time.Millisecond)
	require.Equal(t, []string{"events", "script-a", "script-b", "flush"}, log)
	require.Equal(t, uint64(1), r.Ticks())

	log = nil
	r.TickPhase(PhaseUpdate, time.Millisecond)
	require.Equal(t, []string{"script-a", "script-b"}, log)
	require.Equal(t, uint64(1), r.Ticks())
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "cleanup", PhaseCleanup.String())
	require.Equal(t, "unknown", Phase(42).String())
}
