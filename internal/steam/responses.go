package steam

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Shape errors returned by the decoders. Callers wrap them in the matching core.Error kind.
var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoMatch           = errors.New("no match")
	ErrMissingGames      = errors.New("response has no games field")
	ErrAppUnavailable    = errors.New("app details unavailable")
)

type vanityResponse struct {
	Response struct {
		Success int    `json:"success"`
		SteamID string `json:"steamid"`
		Message string `json:"message"`
	} `json:"response"`
}

// decodeVanity extracts the steamid from ISteamUser/ResolveVanityURL.
// success is 1 on a match and 42 when no profile has that vanity name.
func decodeVanity(body []byte) (string, error) {
	var r vanityResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Response.Success != 1 {
		if r.Response.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrNoMatch, r.Response.Message)
		}
		return "", fmt.Errorf("%w: success=%d", ErrNoMatch, r.Response.Success)
	}
	if !IsNumericID(r.Response.SteamID) {
		return "", fmt.Errorf("%w: steamid %q is not numeric", ErrMalformedResponse, r.Response.SteamID)
	}
	return r.Response.SteamID, nil
}

type ownedGamesResponse struct {
	Response struct {
		GameCount int          `json:"game_count"`
		Games     *[]ownedGame `json:"games"`
	} `json:"response"`
}

type ownedGame struct {
	AppID int64 `json:"appid"`
}

// decodeOwnedGames extracts the app ids from IPlayerService/GetOwnedGames.
// A private profile answers with an empty response object, which is reported
// as ErrMissingGames rather than an empty library.
func decodeOwnedGames(body []byte) ([]int64, error) {
	var r ownedGamesResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Response.Games == nil {
		return nil, ErrMissingGames
	}

	ids := make([]int64, 0, len(*r.Response.Games))
	for _, g := range *r.Response.Games {
		ids = append(ids, g.AppID)
	}
	return ids, nil
}

type appDetailsData struct {
	SteamAppID  int64  `json:"steam_appid"`
	Name        string `json:"name"`
	HeaderImage string `json:"header_image"`
	IsFree      bool   `json:"is_free"`
	Platforms   struct {
		Windows bool `json:"windows"`
		Mac     bool `json:"mac"`
		Linux   bool `json:"linux"`
	} `json:"platforms"`
	Categories []struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"categories"`
}

// decodeAppDetails extracts one app from the Store appdetails response,
// which is keyed by the requested app id: {"<appid>": {"success": bool, "data": {...}}}.
func decodeAppDetails(body []byte, appID int64) (*AppDetails, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}

	entry := gjson.GetBytes(body, strconv.FormatInt(appID, 10))
	if !entry.Exists() {
		return nil, fmt.Errorf("%w: no entry for app %d", ErrMalformedResponse, appID)
	}
	if !entry.Get("success").Bool() {
		return nil, fmt.Errorf("%w: store reported success=false, app may be delisted", ErrAppUnavailable)
	}

	data := entry.Get("data")
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: missing data object", ErrMalformedResponse)
	}

	var d appDetailsData
	if err := json.Unmarshal([]byte(data.Raw), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if d.SteamAppID == 0 {
		d.SteamAppID = appID
	}

	details := &AppDetails{
		SteamAppID:  d.SteamAppID,
		Name:        d.Name,
		HeaderImage: d.HeaderImage,
		IsFree:      d.IsFree,
		Windows:     d.Platforms.Windows,
		Mac:         d.Platforms.Mac,
		Linux:       d.Platforms.Linux,
	}
	for _, c := range d.Categories {
		details.Categories = append(details.Categories, CategoryDetail{ID: c.ID, Description: c.Description})
	}
	return details, nil
}

type friendListResponse struct {
	FriendsList *struct {
		Friends []struct {
			SteamID      string `json:"steamid"`
			Relationship string `json:"relationship"`
		} `json:"friends"`
	} `json:"friendslist"`
}

// decodeFriendList extracts friend steam ids from ISteamUser/GetFriendList.
func decodeFriendList(body []byte) ([]string, error) {
	var r friendListResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.FriendsList == nil {
		return nil, fmt.Errorf("%w: missing friendslist", ErrMalformedResponse)
	}

	ids := make([]string, 0, len(r.FriendsList.Friends))
	for _, f := range r.FriendsList.Friends {
		if f.SteamID != "" {
			ids = append(ids, f.SteamID)
		}
	}
	return ids, nil
}

type playerSummariesResponse struct {
	Response *struct {
		Players []playerSummary `json:"players"`
	} `json:"response"`
}

type playerSummary struct {
	SteamID                  string `json:"steamid"`
	PersonaName              string `json:"personaname"`
	ProfileURL               string `json:"profileurl"`
	Avatar                   string `json:"avatar"`
	CommunityVisibilityState int    `json:"communityvisibilitystate"`
}

// decodePlayerSummaries extracts players from ISteamUser/GetPlayerSummaries.
func decodePlayerSummaries(body []byte) ([]playerSummary, error) {
	var r playerSummariesResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Response == nil {
		return nil, fmt.Errorf("%w: missing response", ErrMalformedResponse)
	}
	return r.Response.Players, nil
}
