package library

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamgate/internal/core"
	"steamgate/internal/steam"
)

type fakeResolver struct {
	vanities map[string]string
	calls    atomic.Int32
}

func (f *fakeResolver) Resolve(_ context.Context, identifier string) (string, error) {
	f.calls.Add(1)
	if steam.IsNumericID(identifier) {
		return identifier, nil
	}
	if id, ok := f.vanities[identifier]; ok {
		return id, nil
	}
	return identifier, core.NewResolutionFailedError(identifier, errors.New("no match"))
}

func TestCacheKey_KnownDigest(t *testing.T) {
	assert.Equal(t, "17f8af97ad4a7f7639a4c9171d5185cbafb85462877a4746c21bdb0a4f940ca0", CacheKey([]string{"2", "1"}))
	assert.Equal(t, "6f0264efb433a2f132636246edde3ad09f842cc453a4029111b045bfad8df10e",
		CacheKey([]string{"76561198000000002", "76561198000000001"}))
}

func TestCacheKey_OrderIndependent(t *testing.T) {
	ids := []string{"76561198000000003", "76561198000000001", "76561198000000002"}
	want := CacheKey(ids)

	permutations := [][]string{
		{"76561198000000001", "76561198000000002", "76561198000000003"},
		{"76561198000000001", "76561198000000003", "76561198000000002"},
		{"76561198000000002", "76561198000000001", "76561198000000003"},
		{"76561198000000002", "76561198000000003", "76561198000000001"},
		{"76561198000000003", "76561198000000002", "76561198000000001"},
	}
	for _, p := range permutations {
		assert.Equal(t, want, CacheKey(p), "permutation %v", p)
	}
}

func TestCacheKey_OrdinalNotNumericSort(t *testing.T) {
	// "10" sorts before "9" ordinally; both orders must still agree.
	assert.Equal(t, CacheKey([]string{"9", "10"}), CacheKey([]string{"10", "9"}))
	assert.NotEqual(t, CacheKey([]string{"1", "2"}), CacheKey([]string{"1", "2", "2"}), "duplicates are kept")
}

func TestCacheKey_DoesNotModifyInput(t *testing.T) {
	in := []string{"b", "a"}
	_ = CacheKey(in)
	assert.Equal(t, []string{"b", "a"}, in)
}

func TestKeyBuilder_VanityAndNumericAgree(t *testing.T) {
	r := &fakeResolver{vanities: map[string]string{"gaben": "76561198000000001"}}
	b := NewKeyBuilder(r, false)

	k1, resolved, err := b.Build(context.Background(), []string{"gaben", "76561198000000002"})
	require.NoError(t, err)
	assert.Equal(t, []string{"76561198000000001", "76561198000000002"}, resolved)

	k2, _, err := b.Build(context.Background(), []string{"76561198000000002", "76561198000000001"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestKeyBuilder_LenientForwardsUnresolved(t *testing.T) {
	b := NewKeyBuilder(&fakeResolver{}, false)

	key, resolved, err := b.Build(context.Background(), []string{"nobody", "76561198000000002"})
	require.NoError(t, err)
	assert.Equal(t, []string{"nobody", "76561198000000002"}, resolved)
	assert.Equal(t, CacheKey([]string{"nobody", "76561198000000002"}), key)
}

func TestKeyBuilder_StrictFails(t *testing.T) {
	b := NewKeyBuilder(&fakeResolver{}, true)

	_, _, err := b.Build(context.Background(), []string{"nobody", "76561198000000002"})
	require.Error(t, err)
	assert.Equal(t, core.KindResolutionFailed, core.KindOf(err))
}
