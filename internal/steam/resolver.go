package steam

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"steamgate/internal/cache"
	"steamgate/internal/core"
)

// IsNumericID reports whether s is a non-negative integer literal, i.e. already a canonical Steam ID.
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Resolver turns vanity names into numeric Steam IDs.
type Resolver struct {
	client     *Client
	identities cache.IdentityCache
}

// NewResolver creates a resolver. identities may be nil to always ask Steam.
func NewResolver(client *Client, identities cache.IdentityCache) *Resolver {
	return &Resolver{client: client, identities: identities}
}

// Resolve returns identifier unchanged when it is already numeric, without any I/O.
// Otherwise it consults the identity cache, then ISteamUser/ResolveVanityURL.
//
// On failure the original identifier is returned together with a
// ResolutionFailed error, so callers can choose to forward it or abort.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if IsNumericID(identifier) {
		return identifier, nil
	}
	if identifier == "" {
		return identifier, core.NewResolutionFailedError(identifier, errors.New("empty identifier"))
	}

	log := core.Logger(ctx)

	if r.identities != nil {
		steamID, ok, err := r.identities.Get(ctx, identifier)
		switch {
		case err != nil:
			log.Warn("identity cache read failed", "vanity", identifier, "error", err)
		case ok:
			return steamID, nil
		}
	}

	body, err := r.client.WebAPI(ctx, "ISteamUser", "ResolveVanityURL", "v0001",
		url.Values{"vanityurl": {identifier}})
	if err != nil {
		return identifier, core.NewResolutionFailedError(identifier, err)
	}

	steamID, err := decodeVanity(body)
	if err != nil {
		return identifier, core.NewResolutionFailedError(identifier, err)
	}

	if r.identities != nil {
		if err := r.identities.Set(ctx, identifier, steamID); err != nil {
			log.Warn("identity cache write failed", "vanity", identifier, "error", err)
		}
	}

	return steamID, nil
}
