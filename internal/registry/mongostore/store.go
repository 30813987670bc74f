// Package mongostore backs registry.Store with MongoDB for deployments that
// want a persistent, queryable agent catalog independent of the replicated
// in-memory variant. Adapted from registry/store/mongo alongside
// features/session/mongo's collection-wrapper idiom.
package mongostore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/homemesh/orchestrator/internal/registry"
)

const defaultCollection = "agents"
const defaultOpTimeout = 5 * time.Second

// Options configures the Mongo registry store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB-backed registry.Store.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New constructs a Store, creating its unique-name index if absent.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil || opts.Database == "" {
		return nil, errors.New("mongo client and database are required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

var _ registry.Store = (*Store)(nil)

type descriptorDocument struct {
	Name         string   `bson:"name"`
	Description  string   `bson:"description"`
	Transport    string   `bson:"transport"`
	Address      string   `bson:"address"`
	LongRunning  bool     `bson:"long_running"`
	StateHistory bool     `bson:"state_history"`
	Streaming    bool     `bson:"streaming"`
	SkillIDs     []string `bson:"skill_ids"`
	SkillNames   []string `bson:"skill_names"`
	SkillDescs   []string `bson:"skill_descs"`
	Tags         []string `bson:"tags"`
}

func toDocument(d registry.AgentDescriptor) descriptorDocument {
	doc := descriptorDocument{
		Name: d.Name, Description: d.Description, Transport: string(d.Transport), Address: d.Address,
		LongRunning: d.Capabilities.LongRunning, StateHistory: d.Capabilities.StateTransitionHistory,
		Streaming: d.Capabilities.Streaming, Tags: d.Tags,
	}
	for _, sk := range d.Skills {
		doc.SkillIDs = append(doc.SkillIDs, sk.ID)
		doc.SkillNames = append(doc.SkillNames, sk.Name)
		doc.SkillDescs = append(doc.SkillDescs, sk.Description)
	}
	return doc
}

func (doc descriptorDocument) toDescriptor() *registry.AgentDescriptor {
	d := &registry.AgentDescriptor{
		Name: doc.Name, Description: doc.Description, Transport: registry.Transport(doc.Transport), Address: doc.Address,
		Capabilities: registry.Capabilities{LongRunning: doc.LongRunning, StateTransitionHistory: doc.StateHistory, Streaming: doc.Streaming},
		Tags: doc.Tags,
	}
	for i := range doc.SkillIDs {
		d.Skills = append(d.Skills, registry.Skill{ID: doc.SkillIDs[i], Name: doc.SkillNames[i], Description: doc.SkillDescs[i]})
	}
	return d
}

func (s *Store) Register(ctx context.Context, desc registry.AgentDescriptor) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx, bson.M{"name": desc.Name}, bson.M{"$set": toDocument(desc)}, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) Unregister(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*registry.AgentDescriptor, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc descriptorDocument
	if err := s.coll.FindOne(ctx, bson.M{"name": name}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	return doc.toDescriptor(), nil
}

func (s *Store) List(ctx context.Context) ([]*registry.AgentDescriptor, error) {
	return s.Query(ctx, registry.QueryFilter{})
}

func (s *Store) Query(ctx context.Context, qf registry.QueryFilter) ([]*registry.AgentDescriptor, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if qf.Text != "" {
		pattern := regexp.QuoteMeta(qf.Text)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"tags": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if qf.LongRunning != nil {
		filter["long_running"] = *qf.LongRunning
	}
	if qf.StateTransitionHistory != nil {
		filter["state_history"] = *qf.StateTransitionHistory
	}
	if qf.Streaming != nil {
		filter["streaming"] = *qf.Streaming
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []*registry.AgentDescriptor
	for cur.Next(ctx) {
		var doc descriptorDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDescriptor())
	}
	return out, cur.Err()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
