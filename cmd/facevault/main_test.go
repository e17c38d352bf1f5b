package main

import (
	"context"
	"database/sql"
	"flag"
	"testing"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_UnknownCommand(t *testing.T) {
	assert.Error(t, run(nil))
	assert.ErrorContains(t, run([]string{"frobnicate"}), "unknown command")
}

func TestCommands_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range commands {
		assert.False(t, seen[c.name], c.name)
		seen[c.name] = true
	}
}

func TestDirArg(t *testing.T) {
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	assert.NoError(t, fs.Parse(nil))
	assert.Equal(t, ".", dirArg(fs))

	fs = flag.NewFlagSet("x", flag.ContinueOnError)
	assert.NoError(t, fs.Parse([]string{"/incoming"}))
	assert.Equal(t, "/incoming", dirArg(fs))
}

func TestOpenPersons(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	persons, err := openPersons(ctx, db, "")
	require.NoError(t, err)

	rec := metadata.Record{IdentityKey: "1168", DisplayName: "FRANCISCO", ArtifactPath: "/archive/a.jpg"}
	require.NoError(t, persons.Upsert(ctx, rec, core.SlotPtr(3)))

	// A second open keeps the existing rows.
	persons, err = openPersons(ctx, db, "")
	require.NoError(t, err)

	var got int
	for r, err := range persons.Records(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "1168", r.IdentityKey)
		assert.True(t, r.Eligible())
		got++
	}
	assert.Equal(t, 1, got)
}
