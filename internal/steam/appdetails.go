package steam

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"steamgate/internal/core"
)

// CategoryDetail is a category as listed on a Store app page.
type CategoryDetail struct {
	ID          int
	Description string
}

// AppDetails is the subset of a Store appdetails answer the catalog keeps.
type AppDetails struct {
	SteamAppID  int64
	Name        string
	HeaderImage string
	IsFree      bool
	Windows     bool
	Mac         bool
	Linux       bool
	Categories  []CategoryDetail
}

// Record converts the details into a catalog app and its categories, stamped with updatedAt.
func (d *AppDetails) Record(updatedAt time.Time) (core.App, []core.Category) {
	app := core.App{
		SteamAppID:  d.SteamAppID,
		Name:        d.Name,
		HeaderImage: d.HeaderImage,
		IsFree:      d.IsFree,
		Platforms:   core.Platforms{Windows: d.Windows, Mac: d.Mac, Linux: d.Linux},
		Categories:  make([]int, 0, len(d.Categories)),
		UpdatedAt:   updatedAt.UTC(),
	}

	cats := make([]core.Category, 0, len(d.Categories))
	for _, c := range d.Categories {
		app.Categories = append(app.Categories, c.ID)
		cats = append(cats, core.Category{CategoryID: c.ID, Description: c.Description})
	}
	return app, cats
}

// FetchAppDetails asks the Store API for one app. A delisted app, a non-2xx
// answer or an unexpected shape is reported as CatalogBackfillFailed.
func (c *Client) FetchAppDetails(ctx context.Context, appID int64) (*AppDetails, error) {
	body, err := c.Store(ctx, "appdetails", url.Values{"appids": {strconv.FormatInt(appID, 10)}})
	if err != nil {
		return nil, core.NewCatalogBackfillError(appID, err)
	}

	details, err := decodeAppDetails(body, appID)
	if err != nil {
		return nil, core.NewCatalogBackfillError(appID, err)
	}
	return details, nil
}
