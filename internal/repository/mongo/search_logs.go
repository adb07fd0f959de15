package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
)

var _ ports.SearchLogRepository = (*SearchLogRepository)(nil)

type SearchLogRepository struct {
	collection *mongo.Collection
}

type searchLogDoc struct {
	UserID    int64  `bson:"userId"`
	Query     string `bson:"query"`
	Found     bool   `bson:"found"`
	CreatedAt int64  `bson:"createdAt"`
}

func NewSearchLogRepository(client *mongo.Client, dbName, collectionName string) *SearchLogRepository {
	return &SearchLogRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func (r *SearchLogRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (r *SearchLogRepository) LogSearch(ctx context.Context, entry domain.SearchLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, searchLogDoc{
		UserID:    entry.UserID,
		Query:     entry.Query,
		Found:     entry.Found,
		CreatedAt: entry.CreatedAt.UnixMilli(),
	})
	return err
}

func (r *SearchLogRepository) RecentSearches(ctx context.Context, limit int) ([]domain.SearchLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []searchLogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.SearchLogEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.SearchLogEntry{
			UserID:    doc.UserID,
			Query:     doc.Query,
			Found:     doc.Found,
			CreatedAt: time.UnixMilli(doc.CreatedAt).UTC(),
		})
	}
	return out, nil
}
