// Package library computes the set of games owned by every account in a comparison.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"steamgate/internal/core"
)

// keyDelimiter joins sorted steam ids before hashing.
const keyDelimiter = ","

// CacheKey returns the lowercase hex SHA-256 of the resolved ids sorted
// ordinally and joined with ",". Any permutation of the same ids yields the same key.
func CacheKey(resolved []string) string {
	ids := slices.Clone(resolved)
	slices.Sort(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, keyDelimiter)))
	return hex.EncodeToString(sum[:])
}

// Resolver canonicalizes a Steam identifier. On failure it returns the
// original identifier along with the error.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// KeyBuilder resolves identities and derives their cache key.
type KeyBuilder struct {
	resolver Resolver
	// strict aborts on the first identifier that does not resolve.
	// Otherwise the raw identifier is forwarded and the failure logged.
	strict bool
}

// NewKeyBuilder creates a key builder with the given resolution policy.
func NewKeyBuilder(resolver Resolver, strict bool) *KeyBuilder {
	return &KeyBuilder{resolver: resolver, strict: strict}
}

// Build resolves every identity concurrently and returns the cache key along
// with the resolved ids in input order.
func (b *KeyBuilder) Build(ctx context.Context, identities []string) (string, []string, error) {
	resolved := make([]string, len(identities))

	g, gctx := errgroup.WithContext(ctx)
	for i, identity := range identities {
		g.Go(func() error {
			id, err := b.resolver.Resolve(gctx, identity)
			if err != nil {
				if b.strict {
					return err
				}
				core.Logger(ctx).Warn("steam id not resolved, using it as given",
					"identifier", identity, "error", err)
			}
			resolved[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	return CacheKey(resolved), resolved, nil
}
