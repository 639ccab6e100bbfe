package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamgate/internal/catalog"
	"steamgate/internal/core"
	"steamgate/internal/steam"
)

type fakeEngine struct {
	got    []string
	result *core.CommonLibrary
	err    error
	panics bool
	ctx    context.Context
}

func (f *fakeEngine) ComputeCommonLibrary(ctx context.Context, ids []string) (*core.CommonLibrary, error) {
	if f.panics {
		panic("engine exploded")
	}
	f.got = ids
	f.ctx = ctx
	return f.result, f.err
}

type fakeResolver struct {
	ids map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, identifier string) (string, error) {
	if steam.IsNumericID(identifier) {
		return identifier, nil
	}
	if id, ok := f.ids[identifier]; ok {
		return id, nil
	}
	return identifier, core.NewResolutionFailedError(identifier, steam.ErrNoMatch)
}

type fakeApps struct {
	details map[int64]*steam.AppDetails
	calls   int
}

func (f *fakeApps) FetchAppDetails(_ context.Context, appID int64) (*steam.AppDetails, error) {
	f.calls++
	if d, ok := f.details[appID]; ok {
		return d, nil
	}
	return nil, core.NewCatalogBackfillError(appID, fmt.Errorf("%w: delisted", steam.ErrAppUnavailable))
}

type fakeProfiles struct {
	set *core.ProfileSet
	err error
}

func (f *fakeProfiles) Get(context.Context, string) (*core.ProfileSet, error) {
	return f.set, f.err
}

type upstreamCall struct {
	iface, command, version string
	query                   url.Values
}

type fakeUpstream struct {
	body []byte
	err  error
	last upstreamCall
}

func (f *fakeUpstream) WebAPI(_ context.Context, iface, command, version string, query url.Values) ([]byte, error) {
	f.last = upstreamCall{iface: iface, command: command, version: version, query: query}
	return f.body, f.err
}

func (f *fakeUpstream) Store(_ context.Context, command string, query url.Values) ([]byte, error) {
	f.last = upstreamCall{command: command, query: query}
	return f.body, f.err
}

type fixture struct {
	engine   *fakeEngine
	catalog  *catalog.MemoryStore
	apps     *fakeApps
	profiles *fakeProfiles
	upstream *fakeUpstream
	deps     Dependencies
}

func newFixture() *fixture {
	f := &fixture{
		engine:   &fakeEngine{result: &core.CommonLibrary{Apps: []core.App{}}},
		catalog:  catalog.NewMemoryStore(),
		apps:     &fakeApps{details: map[int64]*steam.AppDetails{}},
		profiles: &fakeProfiles{},
		upstream: &fakeUpstream{body: []byte(`{}`)},
	}
	f.deps = Dependencies{
		Engine:   f.engine,
		Resolver: &fakeResolver{ids: map[string]string{"gabelogannewell": "76561197960287930"}},
		Catalog:  f.catalog,
		Apps:     f.apps,
		Profiles: f.profiles,
		Upstream: f.upstream,
	}
	return f
}

func (f *fixture) server(cfg *Config) *Server {
	return New(f.deps, cfg)
}

type envelope struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error"`
}

func get(t *testing.T, srv http.Handler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	require.NotNil(t, env.Data, "data must always be an array")
	return rec, env
}

func TestIndex(t *testing.T) {
	rec, env := get(t, newFixture().server(nil), "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":["OK"],"error":""}`, rec.Body.String())
	assert.Empty(t, env.Error)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestHealth(t *testing.T) {
	rec, env := get(t, newFixture().server(nil), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data, 1)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data[0]))
}

func TestUnknownRouteIsEnveloped(t *testing.T) {
	rec, env := get(t, newFixture().server(nil), "/getNothing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.Data)
	assert.NotEmpty(t, env.Error)
}

func TestWrongMethodIsEnveloped(t *testing.T) {
	srv := newFixture().server(nil)
	req := httptest.NewRequest(http.MethodPost, "/getCommonApps", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Error)
}

func TestCommonApps(t *testing.T) {
	f := newFixture()
	f.engine.result = &core.CommonLibrary{
		Count: 1,
		Apps:  []core.App{{SteamAppID: 20, Name: "Team Fortress Classic", Categories: []int{1}}},
	}

	rec, env := get(t, f.server(nil), "/getCommonApps?steamids=76561198000000001,%20gabelogannewell,,")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Error)
	assert.Equal(t, []string{"76561198000000001", "gabelogannewell"}, f.engine.got)

	require.Len(t, env.Data, 1)
	var result core.CommonLibrary
	require.NoError(t, json.Unmarshal(env.Data[0], &result))
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Apps, 1)
	assert.Equal(t, int64(20), result.Apps[0].SteamAppID)
}

func TestCommonApps_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "insufficient identities",
			err:     core.NewInsufficientIdentitiesError(1),
			wantMsg: "at least 2 steam ids are required, got 1",
		},
		{
			name:    "upstream cause is hidden",
			err:     core.NewUpstreamUnavailableError("owned games unavailable for 1", errors.New("dial tcp 10.0.0.1: refused")),
			wantMsg: "owned games unavailable for 1",
		},
		{
			name:    "plain error",
			err:     errors.New("pq: relation steam_app does not exist"),
			wantMsg: "an unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.engine.result = nil
			f.engine.err = tt.err

			rec, env := get(t, f.server(nil), "/getCommonApps?steamids=1")

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.wantMsg, env.Error)
			assert.Empty(t, env.Data)
		})
	}
}

func TestCommonApps_RunsUnderRequestDeadline(t *testing.T) {
	f := newFixture()
	_, _ = get(t, f.server(&Config{RequestTimeout: time.Minute}), "/getCommonApps?steamids=1,2")

	require.NotNil(t, f.engine.ctx)
	deadline, ok := f.engine.ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	assert.NotEmpty(t, core.GetRequestID(f.engine.ctx))
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture()
	f.engine.panics = true

	rec, env := get(t, f.server(nil), "/getCommonApps?steamids=1,2")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, env.Error)
	assert.NotContains(t, env.Error, "engine exploded")
}

func TestAppDetails_FromCatalog(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.catalog.InsertApp(context.Background(), &core.App{
		SteamAppID: 440, Name: "Team Fortress 2", Categories: []int{1, 22},
	}))

	rec, env := get(t, f.server(nil), "/getAppDetails?appids=440")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.apps.calls)

	require.Len(t, env.Data, 1)
	var app core.App
	require.NoError(t, json.Unmarshal(env.Data[0], &app))
	assert.Equal(t, "Team Fortress 2", app.Name)
	assert.Equal(t, map[int]bool{1: true, 22: true}, app.CategoryLookup)
}

func TestAppDetails_FetchesAndPersists(t *testing.T) {
	f := newFixture()
	f.apps.details[730] = &steam.AppDetails{
		SteamAppID: 730,
		Name:       "Counter-Strike 2",
		Windows:    true,
		Linux:      true,
		Categories: []steam.CategoryDetail{{ID: 1, Description: "Multi-player"}},
	}

	for _, path := range []string{"/getAppDetails?appids=730", "/getSteamAppDetails?appids=730"} {
		rec, env := get(t, f.server(nil), path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		require.Len(t, env.Data, 1, path)

		var app core.App
		require.NoError(t, json.Unmarshal(env.Data[0], &app))
		assert.Equal(t, "Counter-Strike 2", app.Name)
		assert.True(t, app.Platforms.Linux)
	}
	assert.Equal(t, 1, f.apps.calls, "second request must be served from the catalog")

	stored, err := f.catalog.GetApps(context.Background(), []int64{730})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []int{1}, stored[0].Categories)

	cats, err := f.catalog.GetCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Category{{CategoryID: 1, Description: "Multi-player"}}, cats)
}

func TestAppDetails_Unavailable(t *testing.T) {
	rec, env := get(t, newFixture().server(nil), "/getAppDetails?appids=999")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Data)
	assert.Empty(t, env.Error)
}

func TestAppDetails_InvalidID(t *testing.T) {
	for _, q := range []string{"", "abc", "-5", "10,20"} {
		rec, env := get(t, newFixture().server(nil), "/getAppDetails?appids="+url.QueryEscape(q))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, q)
		assert.Equal(t, "appids must be a single numeric app id", env.Error, q)
	}
}

func TestSteamID(t *testing.T) {
	tests := []struct {
		name       string
		strict     bool
		identifier string
		wantStatus int
		wantData   string
	}{
		{"numeric passes through", false, "76561198000000001", http.StatusOK, `"76561198000000001"`},
		{"vanity resolves", false, "gabelogannewell", http.StatusOK, `"76561197960287930"`},
		{"lenient echoes unknown vanity", false, "nobody", http.StatusOK, `"nobody"`},
		{"strict rejects unknown vanity", true, "nobody", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.deps.StrictResolution = tt.strict

			rec, env := get(t, f.server(nil), "/getSteamId?identifier="+tt.identifier)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantData == "" {
				assert.Empty(t, env.Data)
				assert.Contains(t, env.Error, "could not resolve")
				return
			}
			require.Len(t, env.Data, 1)
			assert.JSONEq(t, tt.wantData, string(env.Data[0]))
		})
	}
}

func TestSteamID_LegacyRouteAndMissingParam(t *testing.T) {
	srv := newFixture().server(nil)

	rec, env := get(t, srv, "/getSteamID?identifier=gabelogannewell")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"76561197960287930"`, string(env.Data[0]))

	rec, env = get(t, srv, "/getSteamId")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "identifier is required", env.Error)
}

func TestCategories(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.catalog.InsertCategories(context.Background(), []core.Category{
		{CategoryID: 2, Description: "Single-player"},
		{CategoryID: 1, Description: "Multi-player"},
	}))

	for _, path := range []string{"/getCategories", "/getSteamCategories"} {
		rec, env := get(t, f.server(nil), path)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, env.Data, 1)
		assert.JSONEq(t, `{"1":"Multi-player","2":"Single-player"}`, string(env.Data[0]))
	}
}

func TestProfiles(t *testing.T) {
	f := newFixture()
	f.profiles.set = &core.ProfileSet{
		IDString: "1,2",
		User:     &core.Profile{SteamID: "1", PersonaName: "alice", Visible: true},
		Friends:  []core.Profile{{SteamID: "2", PersonaName: "bob"}},
	}

	rec, env := get(t, f.server(nil), "/getProfiles?steamid=alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data, 1)

	var set core.ProfileSet
	require.NoError(t, json.Unmarshal(env.Data[0], &set))
	assert.Equal(t, "1,2", set.IDString)
	assert.Equal(t, "alice", set.User.PersonaName)

	f.profiles.err = core.NewUpstreamUnavailableError("friend list unavailable", nil)
	rec, env = get(t, f.server(nil), "/getProfiles?steamid=alice")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "friend list unavailable", env.Error)
}

func TestSteamAPIPassthrough(t *testing.T) {
	f := newFixture()
	f.upstream.body = []byte(`{"response":{"players":[]}}`)

	rec, env := get(t, f.server(nil), "/steamAPI/ISteamUser/GetPlayerSummaries/v0002?steamids=1&key=stolen")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data, 1)
	assert.JSONEq(t, `{"response":{"players":[]}}`, string(env.Data[0]))

	assert.Equal(t, "ISteamUser", f.upstream.last.iface)
	assert.Equal(t, "GetPlayerSummaries", f.upstream.last.command)
	assert.Equal(t, "v0002", f.upstream.last.version)
	assert.Equal(t, "1", f.upstream.last.query.Get("steamids"))
	assert.False(t, f.upstream.last.query.Has("key"))
}

func TestStoreAPIPassthrough(t *testing.T) {
	f := newFixture()
	f.upstream.body = []byte(`{"440":{"success":true}}`)

	rec, env := get(t, f.server(nil), "/storeAPI/appdetails?appids=440")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"440":{"success":true}}`, string(env.Data[0]))
	assert.Equal(t, "appdetails", f.upstream.last.command)

	f.upstream.body = []byte(`<html>busy</html>`)
	rec, env = get(t, f.server(nil), "/storeAPI/appdetails?appids=440")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "steam returned a non-json body", env.Error)

	f.upstream.err = &core.UpstreamStatusError{StatusCode: http.StatusTooManyRequests}
	rec, env = get(t, f.server(nil), "/storeAPI/appdetails?appids=440")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "steam store api call failed", env.Error)
}

func TestETag(t *testing.T) {
	srv := newFixture().server(nil)

	rec, _ := get(t, srv, "/")
	etag := rec.Header().Get("ETag")
	assert.Equal(t, fmt.Sprintf(`"%016x"`, xxhash.Sum64(rec.Body.Bytes())), etag)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}
