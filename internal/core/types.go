package core

import "time"

// Platforms lists the operating systems an app supports.
type Platforms struct {
	Windows bool `json:"windows" bson:"windows"`
	Mac     bool `json:"mac" bson:"mac"`
	Linux   bool `json:"linux" bson:"linux"`
}

// App is a cataloged Steam app.
type App struct {
	SteamAppID  int64     `json:"steam_appid"`
	Name        string    `json:"name"`
	HeaderImage string    `json:"header_image"`
	IsFree      bool      `json:"is_free"`
	Platforms   Platforms `json:"platforms"`
	Categories  []int     `json:"categories"`
	UpdatedAt   time.Time `json:"updated_at"`

	// CategoryLookup mirrors Categories as a set so consumers can test
	// membership without scanning the list. Derived, never stored in the app catalog.
	CategoryLookup map[int]bool `json:"category_lookup,omitempty"`
}

// HasCategory reports whether the app belongs to the given category.
func (a *App) HasCategory(id int) bool {
	if a.CategoryLookup != nil {
		return a.CategoryLookup[id]
	}
	for _, c := range a.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// BuildCategoryLookup populates CategoryLookup from Categories.
func (a *App) BuildCategoryLookup() {
	lookup := make(map[int]bool, len(a.Categories))
	for _, c := range a.Categories {
		lookup[c] = true
	}
	a.CategoryLookup = lookup
}

// Category is a Steam store category.
type Category struct {
	CategoryID  int    `json:"category_id"`
	Description string `json:"description"`
}

// CommonLibrary is the set of apps owned by every account in a comparison.
type CommonLibrary struct {
	Count int   `json:"count"`
	Apps  []App `json:"apps"`
}

// Profile is the public summary of one Steam account.
type Profile struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	Avatar      string `json:"avatar"`
	Visible     bool   `json:"visible"`
}

// ProfileSet is an account together with its friends.
type ProfileSet struct {
	// IDString is the comma-separated list of every steam id in the set,
	// ready to be passed back to /getCommonApps.
	IDString string    `json:"idString"`
	User     *Profile  `json:"user"`
	Friends  []Profile `json:"friends"`
}

// Envelope is the uniform JSON body of every HTTP response.
type Envelope struct {
	Data  []any  `json:"data"`
	Error string `json:"error"`
}
