package steam

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamgate/internal/core"
)

func TestFetchOwnedGames(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/IPlayerService/GetOwnedGames/v0001", r.URL.Path)
		assert.Equal(t, "1", q.Get("include_appinfo"))
		assert.Equal(t, "1", q.Get("include_played_free_games"))

		switch q.Get("steamid") {
		case "1":
			_, _ = w.Write([]byte(`{"response":{"game_count":3,"games":[{"appid":10},{"appid":20},{"appid":30}]}}`))
		case "private":
			_, _ = w.Write([]byte(`{"response":{}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	ids, err := c.FetchOwnedGames(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)

	for _, steamID := range []string{"private", "denied"} {
		_, err := c.FetchOwnedGames(context.Background(), steamID)
		require.Error(t, err)
		assert.Equal(t, core.KindUpstreamUnavailable, core.KindOf(err))
	}
}

func TestFetchAppDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("appids") {
		case "30":
			_, _ = w.Write([]byte(`{"30":{"success":true,"data":{"steam_appid":30,"name":"Day of Defeat",
				"platforms":{"windows":true},"categories":[{"id":1,"description":"Multi-player"}]}}}`))
		case "99":
			_, _ = w.Write([]byte(`{"99":{"success":false}}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	})

	d, err := c.FetchAppDetails(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "Day of Defeat", d.Name)

	for _, appID := range []int64{99, 100} {
		_, err := c.FetchAppDetails(context.Background(), appID)
		require.Error(t, err)
		assert.Equal(t, core.KindCatalogBackfillFailed, core.KindOf(err))
	}
}

func TestAppDetails_Record(t *testing.T) {
	d := &AppDetails{
		SteamAppID: 440,
		Name:       "Team Fortress 2",
		IsFree:     true,
		Windows:    true,
		Linux:      true,
		Categories: []CategoryDetail{{1, "Multi-player"}, {22, "Steam Achievements"}},
	}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	app, cats := d.Record(at)

	assert.Equal(t, int64(440), app.SteamAppID)
	assert.Equal(t, core.Platforms{Windows: true, Linux: true}, app.Platforms)
	assert.Equal(t, []int{1, 22}, app.Categories)
	assert.Equal(t, time.UTC, app.UpdatedAt.Location())
	assert.True(t, app.UpdatedAt.Equal(at))
	assert.Equal(t, []core.Category{{CategoryID: 1, Description: "Multi-player"}, {CategoryID: 22, Description: "Steam Achievements"}}, cats)
}
