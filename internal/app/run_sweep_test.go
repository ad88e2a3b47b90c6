package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/retention"
	"github.com/dev-tams/cachesweep/internal/storage/memory"
)

func liveFromYAML(t *testing.T, body string) *config.Live {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cachesweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	live, err := config.NewLive(path)
	require.NoError(t, err)
	return live
}

const sweepYAML = `
storage:
  cache:
    connectionString: acct
    containerName: imagesharp
    retention:
      enabled: %s
      numberOfDays: 1
`

func TestRunSweepDisabledDoesNothing(t *testing.T) {
	cache := memory.New("imagesharp")
	cache.Add("cache/old", time.Now().Add(-72*time.Hour))
	accounts := fakeAccounts{"acct|imagesharp": cache}

	live := liveFromYAML(t, fmt.Sprintf(sweepYAML, "false"))

	r, err := RunSweep(context.Background(), live, accounts.open, zaptest.NewLogger(t), false)
	require.NoError(t, err)
	assert.Equal(t, retention.StatusSkipped, r.Status)
	assert.True(t, cache.Has("cache/old"))
}

func TestRunSweepForce(t *testing.T) {
	cache := memory.New("imagesharp")
	cache.Add("cache/old", time.Now().Add(-72*time.Hour))
	cache.Add("cache/fresh", time.Now())
	accounts := fakeAccounts{"acct|imagesharp": cache}

	live := liveFromYAML(t, fmt.Sprintf(sweepYAML, "false"))

	r, err := RunSweep(context.Background(), live, accounts.open, zaptest.NewLogger(t), true)
	require.NoError(t, err)
	assert.Equal(t, retention.StatusCompleted, r.Status)
	assert.Equal(t, 1, r.Deleted)
	assert.True(t, cache.Has("cache/fresh"))
}

func TestRunSweepMisconfigured(t *testing.T) {
	live := liveFromYAML(t, "storage:\n  cache:\n    retention:\n      enabled: true\n")

	r, err := RunSweep(context.Background(), live, fakeAccounts{}.open, zaptest.NewLogger(t), false)
	assert.ErrorIs(t, err, retention.ErrIncompleteConfig)
	assert.Equal(t, retention.StatusMisconfigured, r.Status)
}
