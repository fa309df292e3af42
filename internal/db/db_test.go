package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory_CreatesSchema(t *testing.T) {
	d, err := OpenMemory()
	require.NoError(t, err)
	defer d.Close()

	for _, table := range []string{"unmatched_queries", "api_keys", "api_sessions"} {
		var name string
		err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_FileIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chatbuddy.db")

	d, err := Open(path)
	require.NoError(t, err)
	_, err = d.Exec(`INSERT INTO api_sessions (id, user_id, request, response, created_at) VALUES ('1', 'u', 'hi', 'hello', 0)`)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()

	var count int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM api_sessions`).Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, path, d.Path())
}
