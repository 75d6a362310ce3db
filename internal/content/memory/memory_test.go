package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/internal/content"
	"kycvault/pkg/platform/sentinel"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, data := range [][]byte{[]byte("doc-A"), {}, []byte(strings.Repeat("x", 1<<16))} {
		id, err := s.Store(ctx, data, content.Metadata{Name: "a.pdf"})
		require.NoError(t, err)

		got, err := s.Retrieve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestCIDShape(t *testing.T) {
	id := CID([]byte("doc-A"))
	assert.True(t, strings.HasPrefix(string(id), "Qm"))
	assert.Len(t, string(id), 46)

	raw, err := base58.Decode(string(id))
	require.NoError(t, err)
	assert.Equal(t, sha256Multihash, raw[:2])
	assert.Equal(t, id, CID([]byte("doc-A")))
	assert.NotEqual(t, id, CID([]byte("doc-B")))
}

func TestRetrieveMissing(t *testing.T) {
	_, err := New().Retrieve(context.Background(), "QmMissing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.Equal(t, content.ErrorNotFound, content.CategoryOf(err))
	assert.False(t, content.IsRetryable(err))
}

func TestStoreCopiesBytes(t *testing.T) {
	s := New()
	ctx := context.Background()
	data := []byte("doc-A")

	id, err := s.Store(ctx, data, content.Metadata{})
	require.NoError(t, err)
	data[0] = 'X'

	got, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-A"), got)

	got[0] = 'Y'
	again, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-A"), again)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	_, err := s.Store(ctx, []byte("doc-A"), content.Metadata{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, s.Len())
}
