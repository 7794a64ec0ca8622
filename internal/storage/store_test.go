package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("get on a missing key", func(t *testing.T) {
		st := NewMemoryStore()
		_, err := st.Get("nope")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put("room", []byte("state")))
		value, err := st.Get("room")
		require.NoError(t, err)
		assert.Equal(t, []byte("state"), value)
	})

	t.Run("overwrite", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put("room", []byte("v1")))
		require.NoError(t, st.Put("room", []byte("v2")))
		value, err := st.Get("room")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put("room", []byte("orig")))
		value, err := st.Get("room")
		require.NoError(t, err)
		value[0] = 'X'

		again, err := st.Get("room")
		require.NoError(t, err)
		assert.Equal(t, []byte("orig"), again)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		st := NewMemoryStore()
		require.NoError(t, st.Put("room", []byte("state")))
		require.NoError(t, st.Delete("room"))
		require.NoError(t, st.Delete("room"))
		_, err := st.Get("room")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider()

	a := p.ForRoom("abc123")
	b := p.ForRoom("abc123")
	other := p.ForRoom("xyz789")

	require.NoError(t, a.Put("room", []byte("state")))

	value, err := b.Get("room")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), value, "same room id shares storage")

	_, err = other.Get("room")
	assert.ErrorIs(t, err, ErrKeyNotFound, "rooms never share state")
}
