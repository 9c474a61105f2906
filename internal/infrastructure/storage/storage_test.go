package storage

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), "memory://", &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Backend)
	assert.NotNil(t, s.Blobs)
	assert.NoError(t, s.Close())
}

func TestOpen_Pebble(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(ctx, "pebble://"+dir, &config.Config{})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "pebble", s.Backend)

	require.NoError(t, s.Letters.Insert(ctx, &domain.Letter{LetterID: "a"}))
	_, err = s.Letters.Get(ctx, "a")
	assert.NoError(t, err)
	require.NoError(t, s.Blobs.Put(ctx, "letters/a/0", []byte("x"), "text/plain"))
}

func TestOpen_PebbleBlobsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dsn := "pebble://" + filepath.Join(t.TempDir(), "db")

	s, err := Open(ctx, dsn, &config.Config{})
	require.NoError(t, err)
	require.NoError(t, s.Blobs.Put(ctx, "letters/a/0", []byte("photo"), "image/jpeg"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dsn, &config.Config{})
	require.NoError(t, err)
	defer s.Close()
	data, ct, err := s.Blobs.Get(ctx, "letters/a/0")
	require.NoError(t, err)
	assert.Equal(t, []byte("photo"), data)
	assert.Equal(t, "image/jpeg", ct)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "", &config.Config{})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	_, err = Open(context.Background(), "redis://localhost", &config.Config{})
	assert.ErrorContains(t, err, "unsupported store scheme")
}

func TestDSNPath(t *testing.T) {
	cases := map[string]string{
		"pebble://./data/futureme":  "./data/futureme",
		"pebble:///var/lib/letters": "/var/lib/letters",
		"pebble://data":             "data",
		"./plain/dir":               "./plain/dir",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		got, err := dsnPath(u, raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
