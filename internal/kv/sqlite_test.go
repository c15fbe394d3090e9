package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/clinicedge/clinicedge/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestSlot(t *testing.T) *SQLiteSlot {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "slot.db")
	s, err := OpenSQLiteSlot(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSlot_SetGetDelete(t *testing.T) {
	s := openTestSlot(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", "1"))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// overwrite
	require.NoError(t, s.Set(ctx, "a", "2"))
	v, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting a missing key is not an error
	require.NoError(t, s.Delete(ctx, "a"))
}

func TestSQLiteSlot_WithTx_CommitsAndRollsBack(t *testing.T) {
	s := openTestSlot(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, pair := range [][2]string{{"a", "1"}, {"b", "2"}} {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
				pair[0], pair[1])
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	v, ok, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)

	// a failing function rolls the whole transaction back
	boom := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok, "rollback must keep existing rows")
}

func TestSQLiteSlot_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "slot.db")
	ctx := context.Background()

	s1, err := OpenSQLiteSlot(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "k", "v"))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLiteSlot(ctx, dsn)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
