package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/nav"
	"github.com/nitpack/tgfilebotter2/internal/storage"
	"github.com/nitpack/tgfilebotter2/internal/telegram/telegramtest"
)

func testRuntime(id, token string) *Runtime {
	logger := zap.NewNop()
	m := metrics.New(nil)
	return newRuntime(
		&models.Bot{ID: id, Token: token, Status: models.StatusApproved},
		telegramtest.NewFake(),
		runtimeDeps{
			store:    storage.NewMemoryStorage(),
			renderer: nav.NewRenderer(logger, noopNotifier{}, m),
			logger:   logger,
			metrics:  m,
			opts:     Options{}.withDefaults(),
		},
	)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string) {}

func TestRegistryAddAndLookup(t *testing.T) {
	reg := NewRegistry()
	rt := testRuntime("bot-1", "token-1")

	require.NoError(t, reg.Add(rt))
	assert.Equal(t, 1, reg.Count())

	got, ok := reg.Get("bot-1")
	require.True(t, ok)
	assert.Same(t, rt, got)

	got, ok = reg.Lookup("token-1")
	require.True(t, ok)
	assert.Same(t, rt, got)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(testRuntime("bot-1", "token-1")))

	err := reg.Add(testRuntime("bot-1", "token-2"))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	err = reg.Add(testRuntime("bot-2", "token-1"))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// The failed adds left no partial entries behind.
	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get("bot-2")
	assert.False(t, ok)
	_, ok = reg.Lookup("token-2")
	assert.False(t, ok)
}

func TestRegistryRemoveClearsBothIndexes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(testRuntime("bot-1", "token-1")))

	reg.Remove("bot-1")
	assert.Equal(t, 0, reg.Count())
	_, ok := reg.Get("bot-1")
	assert.False(t, ok)
	_, ok = reg.Lookup("token-1")
	assert.False(t, ok)

	// Removing again is a no-op.
	reg.Remove("bot-1")
	assert.Equal(t, 0, reg.Count())

	// The freed keys can be reused.
	require.NoError(t, reg.Add(testRuntime("bot-1", "token-1")))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(testRuntime("bot-1", "token-1")))
	require.NoError(t, reg.Add(testRuntime("bot-2", "token-2")))

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)

	// Mutating the registry does not affect the snapshot.
	reg.Remove("bot-1")
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, reg.Count())
}
