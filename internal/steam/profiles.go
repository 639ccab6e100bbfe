package steam

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"steamgate/internal/core"
)

// maxSummaryIDs is the GetPlayerSummaries per-call limit.
const maxSummaryIDs = 100

// visibilityPublic is the communityvisibilitystate of a public profile.
const visibilityPublic = 3

// Profiles lists an account together with its friends.
type Profiles struct {
	client   *Client
	resolver *Resolver
	locale   language.Tag
}

// NewProfiles creates a profile lister that sorts friends for locale.
func NewProfiles(client *Client, resolver *Resolver, locale language.Tag) *Profiles {
	return &Profiles{client: client, resolver: resolver, locale: locale}
}

// Get resolves identifier, fetches its friend list and returns the summaries
// of the account and every friend. Friends are sorted by persona name.
func (p *Profiles) Get(ctx context.Context, identifier string) (*core.ProfileSet, error) {
	steamID, err := p.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	body, err := p.client.WebAPI(ctx, "ISteamUser", "GetFriendList", "v0001", url.Values{
		"steamid":      {steamID},
		"relationship": {"friend"},
	})
	if err != nil {
		return nil, core.NewUpstreamUnavailableError("friend list unavailable for "+steamID, err)
	}
	friendIDs, err := decodeFriendList(body)
	if err != nil {
		return nil, core.NewUpstreamUnavailableError("friend list unavailable for "+steamID, err)
	}

	ids := append([]string{steamID}, friendIDs...)
	summaries, err := p.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	set := &core.ProfileSet{
		IDString: strings.Join(ids, ","),
		Friends:  make([]core.Profile, 0, len(summaries)),
	}
	for _, s := range summaries {
		profile := core.Profile{
			SteamID:     s.SteamID,
			PersonaName: s.PersonaName,
			ProfileURL:  s.ProfileURL,
			Avatar:      s.Avatar,
			Visible:     s.CommunityVisibilityState == visibilityPublic,
		}
		if s.SteamID == steamID && set.User == nil {
			set.User = &profile
			continue
		}
		set.Friends = append(set.Friends, profile)
	}

	col := collate.New(p.locale)
	slices.SortFunc(set.Friends, func(a, b core.Profile) int {
		if c := col.CompareString(a.PersonaName, b.PersonaName); c != 0 {
			return c
		}
		return strings.Compare(a.SteamID, b.SteamID)
	})

	return set, nil
}

// summaries fetches player summaries in chunks of maxSummaryIDs, concurrently.
// One failed chunk fails the whole listing.
func (p *Profiles) summaries(ctx context.Context, ids []string) ([]playerSummary, error) {
	chunks := slices.Collect(slices.Chunk(ids, maxSummaryIDs))
	results := make([][]playerSummary, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			body, err := p.client.WebAPI(gctx, "ISteamUser", "GetPlayerSummaries", "v0002",
				url.Values{"steamids": {strings.Join(chunk, ",")}})
			if err != nil {
				return core.NewUpstreamUnavailableError("player summaries unavailable", err)
			}
			players, err := decodePlayerSummaries(body)
			if err != nil {
				return core.NewUpstreamUnavailableError("player summaries unavailable", err)
			}
			results[i] = players
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.Concat(results...), nil
}
