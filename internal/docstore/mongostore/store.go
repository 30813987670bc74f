// Package mongostore backs docstore.Store with MongoDB, adapted from
// features/session/mongo/clients/mongo/client.go's collection-wrapper idiom.
package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/homemesh/orchestrator/internal/docstore"
)

const (
	defaultTranscriptsCollection = "archived_transcripts"
	defaultAgentCardsCollection  = "agent_cards"
	defaultOpTimeout             = 5 * time.Second
)

// Options configures the Mongo document store.
type Options struct {
	Client               *mongodriver.Client
	Database             string
	TranscriptsCollection string
	AgentCardsCollection  string
	Timeout              time.Duration
}

// Store is a MongoDB-backed docstore.Store.
type Store struct {
	mongo        *mongodriver.Client
	transcripts  *mongodriver.Collection
	agentCards   *mongodriver.Collection
	timeout      time.Duration
}

// New constructs a Store, creating the indexes it needs if absent.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	transcripts := opts.TranscriptsCollection
	if transcripts == "" {
		transcripts = defaultTranscriptsCollection
	}
	cards := opts.AgentCardsCollection
	if cards == "" {
		cards = defaultAgentCardsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	transcriptsColl := db.Collection(transcripts)
	cardsColl := db.Collection(cards)

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := transcriptsColl.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "context_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := cardsColl.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}

	return &Store{mongo: opts.Client, transcripts: transcriptsColl, agentCards: cardsColl, timeout: timeout}, nil
}

var _ docstore.Store = (*Store)(nil)

// Name identifies this health.Pinger.
func (s *Store) Name() string { return "docstore-mongo" }

// Ping satisfies goa.design/clue/health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

type transcriptDocument struct {
	ContextID string         `bson:"context_id"`
	Turns     []turnDocument `bson:"turns"`
	ClosedAt  int64          `bson:"closed_at"`
}

type turnDocument struct {
	Role    string `bson:"role"`
	Content string `bson:"content"`
	AtUnix  int64  `bson:"at_unix"`
}

func (s *Store) ArchiveSnapshot(ctx context.Context, snap docstore.ArchivedSnapshot) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	turns := make([]turnDocument, len(snap.Turns))
	for i, t := range snap.Turns {
		turns[i] = turnDocument{Role: t.Role, Content: t.Content, AtUnix: t.AtUnix}
	}
	doc := transcriptDocument{ContextID: snap.ContextID, Turns: turns, ClosedAt: snap.ClosedAt}
	_, err := s.transcripts.UpdateOne(ctx,
		bson.M{"context_id": snap.ContextID},
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) FindArchivedSnapshot(ctx context.Context, contextID string) (*docstore.ArchivedSnapshot, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc transcriptDocument
	if err := s.transcripts.FindOne(ctx, bson.M{"context_id": contextID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	turns := make([]docstore.ArchivedTurn, len(doc.Turns))
	for i, t := range doc.Turns {
		turns[i] = docstore.ArchivedTurn{Role: t.Role, Content: t.Content, AtUnix: t.AtUnix}
	}
	return &docstore.ArchivedSnapshot{ContextID: doc.ContextID, Turns: turns, ClosedAt: doc.ClosedAt}, true, nil
}

type agentCardDocument struct {
	Name        string   `bson:"name"`
	Description string   `bson:"description"`
	URL         string   `bson:"url"`
	Skills      []string `bson:"skills"`
	RawCard     []byte   `bson:"raw_card"`
}

func (s *Store) UpsertAgentCard(ctx context.Context, doc docstore.AgentCardDocument) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rec := agentCardDocument{Name: doc.Name, Description: doc.Description, URL: doc.URL, Skills: doc.Skills, RawCard: doc.RawCard}
	_, err := s.agentCards.UpdateOne(ctx,
		bson.M{"name": doc.Name},
		bson.M{"$set": rec},
		options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) SearchAgentCards(ctx context.Context, query string) ([]docstore.AgentCardDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.agentCards.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	lowerQuery := strings.ToLower(query)
	var out []docstore.AgentCardDocument
	for cur.Next(ctx) {
		var doc agentCardDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if query != "" && !strings.Contains(strings.ToLower(doc.Name), lowerQuery) &&
			!strings.Contains(strings.ToLower(doc.Description), lowerQuery) {
			continue
		}
		out = append(out, docstore.AgentCardDocument{
			Name: doc.Name, Description: doc.Description, URL: doc.URL, Skills: doc.Skills, RawCard: doc.RawCard,
		})
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
