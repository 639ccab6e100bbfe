package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"steamgate/internal/core"
)

// Collection names mirror the SQL table names.
const (
	mongoAppCollection      = "steam_app"
	mongoCategoryCollection = "steam_category"
	mongoCommonCollection   = "steam_common"
)

type mongoAppDocument struct {
	SteamAppID  int64          `bson:"_id"`
	Name        string         `bson:"name"`
	HeaderImage string         `bson:"header_image"`
	IsFree      bool           `bson:"is_free"`
	Platforms   core.Platforms `bson:"platforms"`
	Categories  []int          `bson:"categories"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

type mongoCategoryDocument struct {
	CategoryID  int    `bson:"_id"`
	Description string `bson:"description"`
}

type mongoCommonDocument struct {
	Key string `bson:"_id"`
	// Data is kept as a string so the payload round-trips byte for byte.
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBStore keeps the catalog in three MongoDB collections keyed by _id,
// which gives the same uniqueness as the SQL tables without extra indexes.
// MongoDB stores timestamps with millisecond precision.
type MongoDBStore struct {
	apps       *mongo.Collection
	categories *mongo.Collection
	common     *mongo.Collection
}

// NewMongoDBStore creates the supporting indexes if needed.
func NewMongoDBStore(ctx context.Context, database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	common := database.Collection(mongoCommonCollection)
	if _, err := common.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("create steam_common indexes: %w", err)
	}

	return &MongoDBStore{
		apps:       database.Collection(mongoAppCollection),
		categories: database.Collection(mongoCategoryCollection),
		common:     common,
	}, nil
}

// GetApps returns the cataloged apps among ids.
func (s *MongoDBStore) GetApps(ctx context.Context, ids []int64) ([]core.App, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []core.App{}, nil
	}

	cursor, err := s.apps.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer cursor.Close(ctx)

	apps := make([]core.App, 0, len(ids))
	for cursor.Next(ctx) {
		var doc mongoAppDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode app document: %w", err)
		}
		categories := doc.Categories
		if categories == nil {
			categories = []int{}
		}
		apps = append(apps, core.App{
			SteamAppID:  doc.SteamAppID,
			Name:        doc.Name,
			HeaderImage: doc.HeaderImage,
			IsFree:      doc.IsFree,
			Platforms:   doc.Platforms,
			Categories:  categories,
			UpdatedAt:   doc.UpdatedAt.UTC(),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate apps cursor: %w", err)
	}
	return apps, nil
}

// InsertApp stores app unless its id already exists.
func (s *MongoDBStore) InsertApp(ctx context.Context, app *core.App) error {
	categories := app.Categories
	if categories == nil {
		categories = []int{}
	}
	fields := bson.M{
		"name":         app.Name,
		"header_image": app.HeaderImage,
		"is_free":      app.IsFree,
		"platforms":    app.Platforms,
		"categories":   categories,
		"updated_at":   app.UpdatedAt.UTC(),
	}

	_, err := s.apps.UpdateOne(ctx,
		bson.M{"_id": app.SteamAppID},
		bson.M{"$setOnInsert": fields},
		options.UpdateOne().SetUpsert(true),
	)
	// Two concurrent upserts of a new id can race on _id; the loser is a no-op.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert app %d: %w", app.SteamAppID, err)
	}
	return nil
}

// GetCategories returns every category ordered by id.
func (s *MongoDBStore) GetCategories(ctx context.Context) ([]core.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}

	var docs []mongoCategoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	categories := make([]core.Category, 0, len(docs))
	for _, d := range docs {
		categories = append(categories, core.Category{CategoryID: d.CategoryID, Description: d.Description})
	}
	return categories, nil
}

// InsertCategories stores the categories that do not exist yet, in one unordered bulk write.
func (s *MongoDBStore) InsertCategories(ctx context.Context, categories []core.Category) error {
	categories = uniqueCategories(categories)
	if len(categories) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(categories))
	for _, c := range categories {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": c.CategoryID}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"description": c.Description}}).
			SetUpsert(true))
	}

	_, err := s.categories.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

// GetCommon returns the cached entry for key, or nil if there is none.
func (s *MongoDBStore) GetCommon(ctx context.Context, key string) (*CommonEntry, error) {
	var doc mongoCommonDocument
	err := s.common.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("query common entry: %w", err)
	}
	return &CommonEntry{Data: []byte(doc.Data), UpdatedAt: doc.UpdatedAt.UTC()}, nil
}

// UpsertCommon inserts or replaces the entry for key.
func (s *MongoDBStore) UpsertCommon(ctx context.Context, key string, data []byte, updatedAt time.Time) error {
	doc := mongoCommonDocument{Key: key, Data: string(data), UpdatedAt: updatedAt.UTC()}
	_, err := s.common.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("upsert common entry: %w", err)
	}
	return nil
}

// PurgeCommon deletes common entries last updated before cutoff.
func (s *MongoDBStore) PurgeCommon(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.common.DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("purge common entries: %w", err)
	}
	return res.DeletedCount, nil
}

// Close is a no-op; the client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
