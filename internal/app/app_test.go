package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/clock"
	"focusline/internal/config"
	"focusline/internal/db"
	"focusline/internal/docstore"
)

func TestResolveConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := ResolveConfig(t.TempDir(), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "testUser", cfg.User.ID)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
}

func TestResolveConfigAppliesOverrides(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(workspace), []byte("user:\n  id: alice\ntimer:\n  work_minutes: 50\n"), 0o644))

	cfg, err := ResolveConfig(workspace, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User.ID)
	assert.Equal(t, 50*time.Minute, cfg.WorkDuration())

	cfg, err = ResolveConfig(workspace, Overrides{
		UserID:     "bob",
		Backend:    config.BackendHTTP,
		StoreURL:   "http://127.0.0.1:9999",
		StoreToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User.ID)
	assert.Equal(t, config.BackendHTTP, cfg.Store.Backend)
	assert.Equal(t, "tok", cfg.Store.Token)
}

func TestResolveConfigRejectsInvalidOverrides(t *testing.T) {
	_, err := ResolveConfig(t.TempDir(), Overrides{Backend: config.BackendHTTP})
	assert.ErrorContains(t, err, "store.url")

	_, err = ResolveConfig(t.TempDir(), Overrides{Backend: "redis"})
	assert.Error(t, err)

	_, err = ResolveConfig(t.TempDir(), Overrides{UserID: "a/b"})
	assert.Error(t, err)
}

func TestOpenSQLiteSession(t *testing.T) {
	workspace := t.TempDir()
	ctx := context.Background()
	cfg := config.Default()

	session, err := Open(ctx, workspace, cfg, nil)
	require.NoError(t, err)
	defer session.Close()
	require.NotNil(t, session.DB)
	require.NotNil(t, session.Journal)
	_, err = os.Stat(db.Path(workspace))
	require.NoError(t, err)

	clk := clock.Fake(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))
	store := session.NewCalendar(clk, nil)
	require.NoError(t, store.Initialize(ctx))
	store.SetSelectedDay(15)
	require.True(t, store.AddTask("from app"))
	require.NoError(t, store.Dispose(ctx))

	doc, ok, err := session.Docs.Get(ctx, "users/testUser/months/2024-06")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, doc["days"], "2024-06-15")

	events, err := session.Journal.Tail(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestOpenHTTPSession(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendHTTP
	cfg.Store.URL = "http://127.0.0.1:1"
	cfg.Store.Token = "tok"

	session, err := Open(context.Background(), t.TempDir(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, session.DB)
	assert.Nil(t, session.Journal)
	httpStore, ok := session.Docs.(*docstore.HTTPStore)
	require.True(t, ok)
	assert.Equal(t, "tok", httpStore.BearerToken)
	assert.NoError(t, session.Close())
}

func TestTimerConfigFromConfig(t *testing.T) {
	got := TimerConfig(config.Default())
	assert.Equal(t, 25*time.Minute, got.Work)
	assert.Equal(t, 5*time.Minute, got.Break)
	assert.Equal(t, time.Second, got.SettleDelay)
	assert.Equal(t, time.Second, got.TickInterval)
}
