package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
)

const rebuildBatchSize = 500

var _ ports.Catalog = (*Repository)(nil)

type Repository struct {
	collection *mongo.Collection
}

type entryDoc struct {
	ID              string `bson:"_id"`
	ContainerID     int64  `bson:"containerId"`
	ItemID          int64  `bson:"itemId"`
	TitleRaw        string `bson:"titleRaw"`
	TitleNormalized string `bson:"titleNormalized"`
	TitleLength     int    `bson:"titleLength"`
	CreatedAt       int64  `bson:"createdAt"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "containerId", Value: 1}, {Key: "itemId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "titleLength", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// SearchSubstring runs the three filter tiers in order and returns the first
// non-empty one.
func (r *Repository) SearchSubstring(ctx context.Context, normalized string, limit int) ([]domain.CatalogEntry, error) {
	tokens := ports.SearchTokens(normalized)
	if len(tokens) == 0 {
		return nil, nil
	}
	for _, filter := range tierFilters(normalized, tokens) {
		entries, err := r.find(ctx, filter, limit, bson.D{
			{Key: "titleLength", Value: 1},
			{Key: "createdAt", Value: -1},
		})
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, nil
}

func tierFilters(normalized string, tokens []string) []bson.M {
	phrase := bson.M{"titleNormalized": bson.M{"$regex": "(^| )" + regexp.QuoteMeta(normalized) + "( |$)"}}

	prefix := make(bson.A, 0, len(tokens))
	contains := make(bson.A, 0, len(tokens))
	for _, token := range tokens {
		quoted := regexp.QuoteMeta(token)
		prefix = append(prefix, bson.M{"titleNormalized": bson.M{"$regex": "(^| )" + quoted}})
		contains = append(contains, bson.M{"titleNormalized": bson.M{"$regex": quoted}})
	}
	return []bson.M{phrase, {"$and": prefix}, {"$and": contains}}
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.CatalogEntry, error) {
	return r.find(ctx, bson.M{}, limit, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *Repository) find(ctx context.Context, filter bson.M, limit int, sort bson.D) ([]domain.CatalogEntry, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	entries := make([]domain.CatalogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, docToEntry(doc))
	}
	return entries, nil
}

func (r *Repository) Get(ctx context.Context, loc domain.Locator) (domain.CatalogEntry, error) {
	var doc entryDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": docID(loc)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CatalogEntry{}, domain.ErrNotFound
		}
		return domain.CatalogEntry{}, err
	}
	return docToEntry(doc), nil
}

func (r *Repository) Upsert(ctx context.Context, entry domain.CatalogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	doc := entryToDoc(entry)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// DeleteEntry removes the entry if present. A missing entry is not an error:
// concurrent repairs of the same stale item race here.
func (r *Repository) DeleteEntry(ctx context.Context, loc domain.Locator) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": docID(loc)})
	return err
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *Repository) RebuildNormalized(ctx context.Context, normalize func(string) string) (int, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{
		"titleRaw":        1,
		"titleNormalized": 1,
	}))
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	changed := 0
	batch := make([]mongo.WriteModel, 0, rebuildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := r.collection.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("bulk write: %w", err)
		}
		changed += int(res.ModifiedCount)
		batch = batch[:0]
		return nil
	}

	for cursor.Next(ctx) {
		var doc entryDoc
		if err := cursor.Decode(&doc); err != nil {
			return changed, err
		}
		next := normalize(doc.TitleRaw)
		if next == doc.TitleNormalized {
			continue
		}
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				"titleNormalized": next,
				"titleLength":     utf8.RuneCountInString(next),
			}}))
		if len(batch) == rebuildBatchSize {
			if err := flush(); err != nil {
				return changed, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return changed, err
	}
	if err := flush(); err != nil {
		return changed, err
	}
	return changed, nil
}

func docID(loc domain.Locator) string {
	return fmt.Sprintf("%d:%d", loc.ContainerID, loc.ItemID)
}

func entryToDoc(entry domain.CatalogEntry) entryDoc {
	return entryDoc{
		ID:              docID(entry.Locator()),
		ContainerID:     entry.ContainerID,
		ItemID:          entry.ItemID,
		TitleRaw:        entry.TitleRaw,
		TitleNormalized: entry.TitleNormalized,
		TitleLength:     utf8.RuneCountInString(entry.TitleNormalized),
		CreatedAt:       entry.CreatedAt.UnixMilli(),
	}
}

func docToEntry(doc entryDoc) domain.CatalogEntry {
	return domain.CatalogEntry{
		TitleRaw:        doc.TitleRaw,
		TitleNormalized: doc.TitleNormalized,
		ContainerID:     doc.ContainerID,
		ItemID:          doc.ItemID,
		CreatedAt:       time.UnixMilli(doc.CreatedAt).UTC(),
	}
}
