package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProviderSetNX(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "lock", []byte("a"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "lock", []byte("b"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Del(ctx, "lock"))
	_, err = m.Get(ctx, "lock")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProviderReturnsCopies(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryProvider()

	type entry struct{ Name string }
	require.NoError(t, SetJSON(ctx, m, "k", []entry{{Name: "a"}}, time.Minute))

	var got []entry
	require.True(t, GetJSON(ctx, m, "k", &got))
	assert.Equal(t, []entry{{Name: "a"}}, got)

	require.NoError(t, SetJSON(ctx, m, "skipped", entry{Name: "b"}, 0))
	assert.False(t, GetJSON(ctx, m, "skipped", &got))

	require.NoError(t, m.Set(ctx, "garbage", []byte("{"), time.Minute))
	assert.False(t, GetJSON(ctx, m, "garbage", &got))

	assert.False(t, GetJSON(ctx, NoopProvider{}, "k", &got))
}
