package db

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_add_index.sql":         {Data: []byte("CREATE INDEX x ON y (z);")},
		"002_conversation_seed.sql": {Data: []byte("SELECT 2;")},
		"README.md":                 {Data: []byte("docs")},
		"notes.sql":                 {Data: []byte("SELECT 0;")},
		"abc_bad_prefix.sql":        {Data: []byte("SELECT 0;")},
	}

	migrations, err := ReadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, Migration{Number: 2, Name: "conversation_seed", SQL: "SELECT 2;"}, migrations[0])
	assert.Equal(t, 10, migrations[1].Number)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := ReadMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Number)
	assert.Contains(t, migrations[0].SQL, "conversation_entries")
}

func TestWithSSLDisabled(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db?sslmode=disable", withSSLDisabled("postgres://u@h/db"))
	assert.Equal(t, "postgres://u@h/db?x=1&sslmode=disable", withSSLDisabled("postgres://u@h/db?x=1"))
}

func TestNewRequiresConnectionString(t *testing.T) {
	_, err := New(context.Background(), "", nil)
	require.Error(t, err)
}
