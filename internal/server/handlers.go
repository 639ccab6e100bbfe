// Package server provides HTTP handlers and server setup for the Steam gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"steamgate/internal/catalog"
	"steamgate/internal/core"
	"steamgate/internal/steam"
)

// CommonLibraryComputer computes the apps shared by a set of accounts.
type CommonLibraryComputer interface {
	ComputeCommonLibrary(ctx context.Context, identities []string) (*core.CommonLibrary, error)
}

// IdentityResolver turns a vanity name or numeric id into a numeric Steam ID.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// AppDetailsFetcher fetches one app from the Store API.
type AppDetailsFetcher interface {
	FetchAppDetails(ctx context.Context, appID int64) (*steam.AppDetails, error)
}

// ProfileLister lists an account together with its friends.
type ProfileLister interface {
	Get(ctx context.Context, identifier string) (*core.ProfileSet, error)
}

// Upstream issues raw Steam calls for the pass-through routes.
type Upstream interface {
	WebAPI(ctx context.Context, iface, command, version string, query url.Values) ([]byte, error)
	Store(ctx context.Context, command string, query url.Values) ([]byte, error)
}

// Dependencies are the collaborators the handlers dispatch to.
type Dependencies struct {
	Engine   CommonLibraryComputer
	Resolver IdentityResolver
	Catalog  catalog.Store
	Apps     AppDetailsFetcher
	Profiles ProfileLister
	Upstream Upstream

	// StrictResolution makes /getSteamId fail when a vanity name does not
	// resolve instead of echoing the name back.
	StrictResolution bool
}

// Handler holds the HTTP handlers
type Handler struct {
	deps Dependencies
	now  func() time.Time
}

// NewHandler creates a new handler dispatching to deps
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		deps: deps,
		now:  time.Now,
	}
}

// Index handles GET /
func (h *Handler) Index(c echo.Context) error {
	return respond(c, "OK")
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return respond(c, map[string]string{"status": "ok"})
}

// CommonApps handles GET /getCommonApps?steamids=a,b,...
func (h *Handler) CommonApps(c echo.Context) error {
	ids := splitList(c.QueryParam("steamids"))

	result, err := h.deps.Engine.ComputeCommonLibrary(c.Request().Context(), ids)
	if err != nil {
		return handleError(c, err)
	}
	return respond(c, result)
}

// AppDetails handles GET /getAppDetails?appids=<id>.
// The catalog answers first; an unknown app is fetched from the Store API and persisted.
func (h *Handler) AppDetails(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("appids"))
	appID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || appID <= 0 {
		return handleError(c, core.NewInvalidRequestError("appids must be a single numeric app id", err))
	}

	ctx := c.Request().Context()
	known, err := h.deps.Catalog.GetApps(ctx, []int64{appID})
	if err != nil {
		return handleError(c, err)
	}
	if len(known) > 0 {
		app := known[0]
		app.BuildCategoryLookup()
		return respond(c, app)
	}

	details, err := h.deps.Apps.FetchAppDetails(ctx, appID)
	if err != nil {
		if errors.Is(err, steam.ErrAppUnavailable) {
			core.Logger(ctx).Info("app unavailable on the store", "appid", appID)
			return respond(c)
		}
		return handleError(c, err)
	}

	app, categories := details.Record(h.now().UTC().Truncate(time.Microsecond))
	log := core.Logger(ctx)
	if err := h.deps.Catalog.InsertApp(ctx, &app); err != nil {
		log.Warn("failed to persist app", "appid", app.SteamAppID, "error", err)
	}
	if err := h.deps.Catalog.InsertCategories(ctx, categories); err != nil {
		log.Warn("failed to persist categories", "appid", app.SteamAppID, "error", err)
	}

	app.BuildCategoryLookup()
	return respond(c, app)
}

// SteamID handles GET /getSteamId?identifier=<vanity or id>
func (h *Handler) SteamID(c echo.Context) error {
	identifier := strings.TrimSpace(c.QueryParam("identifier"))
	if identifier == "" {
		return handleError(c, core.NewInvalidRequestError("identifier is required", nil))
	}

	ctx := c.Request().Context()
	steamID, err := h.deps.Resolver.Resolve(ctx, identifier)
	if err != nil {
		if h.deps.StrictResolution || core.KindOf(err) != core.KindResolutionFailed {
			return handleError(c, err)
		}
		core.Logger(ctx).Warn("vanity resolution failed, echoing identifier", "identifier", identifier, "error", err)
		steamID = identifier
	}
	return respond(c, steamID)
}

// Categories handles GET /getCategories and answers {category_id: description}.
func (h *Handler) Categories(c echo.Context) error {
	categories, err := h.deps.Catalog.GetCategories(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}

	byID := make(map[int]string, len(categories))
	for _, cat := range categories {
		byID[cat.CategoryID] = cat.Description
	}
	return respond(c, byID)
}

// Profiles handles GET /getProfiles?steamid=<vanity or id>
func (h *Handler) Profiles(c echo.Context) error {
	identifier := strings.TrimSpace(c.QueryParam("steamid"))
	if identifier == "" {
		return handleError(c, core.NewInvalidRequestError("steamid is required", nil))
	}

	set, err := h.deps.Profiles.Get(c.Request().Context(), identifier)
	if err != nil {
		return handleError(c, err)
	}
	return respond(c, set)
}

// SteamAPI handles GET /steamAPI/:iface/:command/:version, forwarding the query string.
func (h *Handler) SteamAPI(c echo.Context) error {
	body, err := h.deps.Upstream.WebAPI(c.Request().Context(),
		c.Param("iface"), c.Param("command"), c.Param("version"), passthroughQuery(c))
	if err != nil {
		return handleError(c, core.NewUpstreamUnavailableError("steam web api call failed", err))
	}
	return respondRaw(c, body)
}

// StoreAPI handles GET /storeAPI/:command, forwarding the query string.
func (h *Handler) StoreAPI(c echo.Context) error {
	body, err := h.deps.Upstream.Store(c.Request().Context(), c.Param("command"), passthroughQuery(c))
	if err != nil {
		return handleError(c, core.NewUpstreamUnavailableError("steam store api call failed", err))
	}
	return respondRaw(c, body)
}

func respondRaw(c echo.Context, body []byte) error {
	if !json.Valid(body) {
		return handleError(c, core.NewUpstreamUnavailableError("steam returned a non-json body", nil))
	}
	return respond(c, json.RawMessage(body))
}

// passthroughQuery copies the caller's query without any key parameter;
// the client appends the configured one.
func passthroughQuery(c echo.Context) url.Values {
	q := url.Values{}
	for k, v := range c.QueryParams() {
		if k == "key" {
			continue
		}
		q[k] = append([]string(nil), v...)
	}
	return q
}

// splitList splits a comma-separated parameter, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
