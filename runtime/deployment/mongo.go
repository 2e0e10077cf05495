package deployment

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"
)

const (
	defaultVersionsCollection = "graph_versions"
	mongoOpTimeout            = 5 * time.Second
	mongoClientName           = "deployment-mongo"
)

// MongoStore implements Store against MongoDB, one document per
// (graph_id, version) pair.
type MongoStore struct {
	client   *mongo.Client
	versions *mongo.Collection
}

var _ Store = (*MongoStore)(nil)
var _ health.Pinger = (*MongoStore)(nil)

// NewMongoStore builds a MongoStore and ensures its indexes exist.
func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("deployment: mongo client is required")
	}
	if collection == "" {
		collection = defaultVersionsCollection
	}
	coll := client.Database(database).Collection(collection)

	indexCtx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(indexCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "graph_id", Value: 1}, {Key: "version", Value: -1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return &MongoStore{client: client, versions: coll}, nil
}

func (s *MongoStore) Name() string { return mongoClientName }

func (s *MongoStore) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx, readpref.Primary())
}

type versionDocument struct {
	GraphID   string    `bson:"graph_id"`
	Version   int       `bson:"version"`
	Name      string    `bson:"name"`
	Snapshot  Snapshot  `bson:"snapshot"`
	Hash      string    `bson:"hash"`
	IsActive  bool      `bson:"is_active"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(v Version) versionDocument {
	return versionDocument{
		GraphID: v.GraphID, Version: v.Version, Name: v.Name,
		Snapshot: v.Snapshot, Hash: v.Hash, IsActive: v.IsActive, CreatedAt: v.CreatedAt,
	}
}

func fromDocument(d versionDocument) Version {
	return Version{
		GraphID: d.GraphID, Version: d.Version, Name: d.Name,
		Snapshot: d.Snapshot, Hash: d.Hash, IsActive: d.IsActive, CreatedAt: d.CreatedAt,
	}
}

func (s *MongoStore) CreateVersion(ctx context.Context, v Version) error {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.versions.InsertOne(ctxT, toDocument(v))
	return err
}

func (s *MongoStore) GetVersion(ctx context.Context, graphID string, version int) (Version, error) {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	var doc versionDocument
	err := s.versions.FindOne(ctxT, bson.M{"graph_id": graphID, "version": version}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, err
	}
	return fromDocument(doc), nil
}

func (s *MongoStore) ListVersions(ctx context.Context, graphID string, page, size int) (Page, error) {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()

	total, err := s.versions.CountDocuments(ctxT, bson.M{"graph_id": graphID})
	if err != nil {
		return Page{}, err
	}

	cur, err := s.versions.Find(ctxT, bson.M{"graph_id": graphID},
		options.Find().
			SetSort(bson.D{{Key: "version", Value: -1}}).
			SetSkip(int64(page*size)).
			SetLimit(int64(size)))
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []versionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return Page{}, err
	}
	out := make([]Version, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(d)
	}
	return Page{Versions: out, Total: int(total)}, nil
}

func (s *MongoStore) ActiveVersion(ctx context.Context, graphID string) (Version, bool, error) {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	var doc versionDocument
	err := s.versions.FindOne(ctxT, bson.M{"graph_id": graphID, "is_active": true}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Version{}, false, nil
	}
	if err != nil {
		return Version{}, false, err
	}
	return fromDocument(doc), true, nil
}

func (s *MongoStore) MaxVersion(ctx context.Context, graphID string) (int, error) {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	var doc versionDocument
	err := s.versions.FindOne(ctxT, bson.M{"graph_id": graphID},
		options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

func (s *MongoStore) SetActive(ctx context.Context, graphID string, version int) error {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.versions.UpdateMany(ctxT,
		bson.M{"graph_id": graphID}, bson.M{"$set": bson.M{"is_active": false}}); err != nil {
		return err
	}
	res, err := s.versions.UpdateOne(ctxT,
		bson.M{"graph_id": graphID, "version": version}, bson.M{"$set": bson.M{"is_active": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RenameVersion(ctx context.Context, graphID string, version int, name string) error {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.versions.UpdateOne(ctxT,
		bson.M{"graph_id": graphID, "version": version}, bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteVersion(ctx context.Context, graphID string, version int) error {
	ctxT, cancel := withTimeout(ctx)
	defer cancel()
	res, err := s.versions.DeleteOne(ctxT, bson.M{"graph_id": graphID, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, mongoOpTimeout)
}
