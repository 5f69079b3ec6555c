package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMigrates(t *testing.T) {
	conn, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "respatch.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	version, dirty, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	for _, table := range []string{"runs", "patches", "patch_points"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	// a second migration pass is a no-op
	require.NoError(t, Migrate(conn))
}

func TestTransactionRollsBack(t *testing.T) {
	conn, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	boom := errors.New("boom")
	err = Transaction(context.Background(), conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO runs (id, individual) VALUES ('r1', '2087')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n))
	assert.Equal(t, 0, n)
}
