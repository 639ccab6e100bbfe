package steam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVanity(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"match", `{"response":{"success":1,"steamid":"76561197960287930"}}`, "76561197960287930", nil},
		{"no match", `{"response":{"success":42,"message":"No match"}}`, "", ErrNoMatch},
		{"non numeric id", `{"response":{"success":1,"steamid":"abc"}}`, "", ErrMalformedResponse},
		{"not json", `<html>`, "", ErrMalformedResponse},
		{"empty object", `{}`, "", ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVanity([]byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeOwnedGames(t *testing.T) {
	t.Run("games", func(t *testing.T) {
		ids, err := decodeOwnedGames([]byte(`{"response":{"game_count":2,"games":[{"appid":10,"name":"CS"},{"appid":20}]}}`))
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 20}, ids)
	})

	t.Run("empty games list is a valid empty library", func(t *testing.T) {
		ids, err := decodeOwnedGames([]byte(`{"response":{"game_count":0,"games":[]}}`))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("missing games field", func(t *testing.T) {
		_, err := decodeOwnedGames([]byte(`{"response":{}}`))
		require.ErrorIs(t, err, ErrMissingGames)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := decodeOwnedGames([]byte(`{"response":{"games":"nope"}}`))
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestDecodeAppDetails(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		body := `{"440":{"success":true,"data":{
			"steam_appid":440,"name":"Team Fortress 2","header_image":"https://cdn/440.jpg","is_free":true,
			"platforms":{"windows":true,"mac":false,"linux":true},
			"categories":[{"id":1,"description":"Multi-player"},{"id":22,"description":"Steam Achievements"}]}}}`

		d, err := decodeAppDetails([]byte(body), 440)
		require.NoError(t, err)
		assert.Equal(t, int64(440), d.SteamAppID)
		assert.Equal(t, "Team Fortress 2", d.Name)
		assert.True(t, d.IsFree)
		assert.True(t, d.Windows)
		assert.False(t, d.Mac)
		assert.True(t, d.Linux)
		assert.Equal(t, []CategoryDetail{{1, "Multi-player"}, {22, "Steam Achievements"}}, d.Categories)
	})

	t.Run("delisted", func(t *testing.T) {
		_, err := decodeAppDetails([]byte(`{"99":{"success":false}}`), 99)
		require.ErrorIs(t, err, ErrAppUnavailable)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := decodeAppDetails([]byte(`{"10":{"success":true,"data":{}}}`), 20)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("data not an object", func(t *testing.T) {
		_, err := decodeAppDetails([]byte(`{"10":{"success":true,"data":[]}}`), 10)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeAppDetails([]byte(`null{`), 10)
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("missing steam_appid falls back to requested id", func(t *testing.T) {
		d, err := decodeAppDetails([]byte(`{"10":{"success":true,"data":{"name":"Counter-Strike"}}}`), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(10), d.SteamAppID)
		assert.Empty(t, d.Categories)
	})
}

func TestDecodeFriendList(t *testing.T) {
	ids, err := decodeFriendList([]byte(`{"friendslist":{"friends":[{"steamid":"2","relationship":"friend"},{"steamid":"3"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)

	_, err = decodeFriendList([]byte(`{}`))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodePlayerSummaries(t *testing.T) {
	players, err := decodePlayerSummaries([]byte(`{"response":{"players":[{"steamid":"1","personaname":"a","communityvisibilitystate":3}]}}`))
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, 3, players[0].CommunityVisibilityState)

	_, err = decodePlayerSummaries([]byte(`{"players":[]}`))
	require.ErrorIs(t, err, ErrMalformedResponse)
}
