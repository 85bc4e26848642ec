package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/internal/common"
)

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)

	data := []byte("%PDF-1.4 test document")
	ref, err := store.Put(ctx, "order-123.pdf", data, "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	got, mime, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "application/pdf", mime)
}

func TestFSMissingRef(t *testing.T) {
	store, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "2026/01/01/nope.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFSRejectsEscapingRefs(t *testing.T) {
	store, err := NewFS(t.TempDir(), nil)
	require.NoError(t, err)

	for _, ref := range []string{"../etc/passwd", "/etc/passwd", "a/../../x"} {
		_, _, err := store.Get(context.Background(), ref)
		assert.ErrorIs(t, err, common.ErrInvalidInput, ref)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	ref, err := store.Put(ctx, "x.png", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)

	data, mime, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
	assert.Equal(t, "image/png", mime)

	_, _, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
