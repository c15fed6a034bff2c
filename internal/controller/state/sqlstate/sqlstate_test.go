package sqlstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/statetest"
)

func TestState_SQLite(t *testing.T) {
	statetest.Run(t, statetest.Factory{
		New: func(t *testing.T) serverstate.State {
			return newSQLite(t, filepath.Join(t.TempDir(), "state.db"))
		},
		Reopen: func(t *testing.T, old serverstate.State) serverstate.State {
			path := old.(*State).path
			require.NoError(t, old.Close())
			return newSQLite(t, path)
		},
	})
}

func newSQLite(t *testing.T, path string) serverstate.State {
	t.Helper()

	s, err := New(&Config{Driver: DriverSQLite, Path: path}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolveDriver(t *testing.T) {
	driver, dsn, err := resolveDriver(&Config{})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, driver)
	assert.Contains(t, dsn, defaultSQLitePath)

	_, dsn, err = resolveDriver(&Config{Path: "state.db"})
	require.NoError(t, err)
	assert.Equal(t, "state.db?"+sqlitePragmas, dsn)

	_, dsn, err = resolveDriver(&Config{Path: "file:state.db?mode=rwc"})
	require.NoError(t, err)
	assert.Equal(t, "file:state.db?mode=rwc&"+sqlitePragmas, dsn)

	driver, dsn, err = resolveDriver(&Config{Driver: DriverPostgres, DSN: "postgres://localhost/ci"})
	require.NoError(t, err)
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, "postgres://localhost/ci", dsn)

	_, _, err = resolveDriver(&Config{Driver: DriverPostgres})
	require.Error(t, err)

	_, _, err = resolveDriver(&Config{Driver: "mysql"})
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &State{driver: DriverPostgres}
	assert.Equal(t,
		"UPDATE t SET a = $1, b = $2 WHERE c = $3",
		pg.rebind("UPDATE t SET a = ?, b = ? WHERE c = ?"))

	lite := &State{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}
