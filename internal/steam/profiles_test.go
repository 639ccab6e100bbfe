package steam

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"steamgate/internal/core"
)

func profileServer(t *testing.T, friends []string, summaryCalls *atomic.Int32) *Client {
	t.Helper()
	names := map[string]string{"1": "owner", "2": "bravo", "3": "Alpha", "4": "charlie"}

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/ISteamUser/ResolveVanityURL/v0001":
			_, _ = w.Write([]byte(`{"response":{"success":1,"steamid":"1"}}`))
		case "/ISteamUser/GetFriendList/v0001":
			assert.Equal(t, "friend", q.Get("relationship"))
			if q.Get("steamid") != "1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			entries := make([]string, 0, len(friends))
			for _, f := range friends {
				entries = append(entries, fmt.Sprintf(`{"steamid":%q,"relationship":"friend"}`, f))
			}
			fmt.Fprintf(w, `{"friendslist":{"friends":[%s]}}`, strings.Join(entries, ","))
		case "/ISteamUser/GetPlayerSummaries/v0002":
			summaryCalls.Add(1)
			var players []string
			for _, id := range strings.Split(q.Get("steamids"), ",") {
				name, ok := names[id]
				if !ok {
					name = "player" + id
				}
				visibility := 3
				if id == "4" {
					visibility = 1
				}
				players = append(players, fmt.Sprintf(
					`{"steamid":%q,"personaname":%q,"profileurl":"https://steamcommunity.com/profiles/%s","avatar":"a.jpg","communityvisibilitystate":%d}`,
					id, name, id, visibility))
			}
			fmt.Fprintf(w, `{"response":{"players":[%s]}}`, strings.Join(players, ","))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return c
}

func TestProfiles_Get(t *testing.T) {
	var summaryCalls atomic.Int32
	c := profileServer(t, []string{"2", "3", "4"}, &summaryCalls)
	p := NewProfiles(c, NewResolver(c, nil), language.English)

	set, err := p.Get(context.Background(), "owner-vanity")
	require.NoError(t, err)

	assert.Equal(t, "1,2,3,4", set.IDString)
	require.NotNil(t, set.User)
	assert.Equal(t, "owner", set.User.PersonaName)
	assert.True(t, set.User.Visible)

	require.Len(t, set.Friends, 3)
	assert.Equal(t, "Alpha", set.Friends[0].PersonaName)
	assert.Equal(t, "bravo", set.Friends[1].PersonaName)
	assert.Equal(t, "charlie", set.Friends[2].PersonaName)
	assert.False(t, set.Friends[2].Visible)
	assert.Equal(t, int32(1), summaryCalls.Load())
}

func TestProfiles_SummariesAreChunked(t *testing.T) {
	friends := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		friends = append(friends, fmt.Sprintf("%d", 1000+i))
	}

	var summaryCalls atomic.Int32
	c := profileServer(t, friends, &summaryCalls)
	p := NewProfiles(c, NewResolver(c, nil), language.English)

	set, err := p.Get(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, int32(2), summaryCalls.Load())
	assert.Len(t, set.Friends, 150)
	assert.NotNil(t, set.User)
}

func TestProfiles_FriendListFailure(t *testing.T) {
	var summaryCalls atomic.Int32
	c := profileServer(t, nil, &summaryCalls)
	p := NewProfiles(c, NewResolver(c, nil), language.English)

	_, err := p.Get(context.Background(), "2")
	require.Error(t, err)
	assert.Equal(t, core.KindUpstreamUnavailable, core.KindOf(err))
	assert.Zero(t, summaryCalls.Load())
}
