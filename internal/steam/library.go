package steam

import (
	"context"
	"net/url"

	"steamgate/internal/core"
)

// FetchOwnedGames returns the app ids owned by steamID, including free games played.
// Any failure, including a response without a games field, is UpstreamUnavailable:
// an empty library cannot be told apart from a hidden one.
func (c *Client) FetchOwnedGames(ctx context.Context, steamID string) ([]int64, error) {
	body, err := c.WebAPI(ctx, "IPlayerService", "GetOwnedGames", "v0001", url.Values{
		"steamid":                   {steamID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
	})
	if err != nil {
		return nil, core.NewUpstreamUnavailableError("owned games unavailable for "+steamID, err)
	}

	ids, err := decodeOwnedGames(body)
	if err != nil {
		return nil, core.NewUpstreamUnavailableError("owned games unavailable for "+steamID, err)
	}
	return ids, nil
}
