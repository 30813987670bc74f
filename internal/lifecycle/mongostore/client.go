// Package mongostore backs lifecycle.Store with MongoDB, adapted from
// features/session/mongo/clients/mongo/client.go. It keeps the same thin
// collection/cursor/singleResult wrapper interfaces so the client remains
// unit-testable without a live Mongo server, and the same idempotent
// $set/$setOnInsert split that makes CreateSession and UpsertRun safe under
// retries.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/homemesh/orchestrator/internal/lifecycle"
)

const (
	defaultSessionsCollection = "sessions"
	defaultRunsCollection     = "runs"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo lifecycle client.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	SessionsCollection string
	RunsCollection     string
	Timeout            time.Duration
}

// Store is a MongoDB-backed lifecycle.Store. It also implements
// goa.design/clue/health.Pinger via Name/Ping.
type Store struct {
	mongo    *mongodriver.Client
	sessions collection
	runs     collection
	timeout  time.Duration
}

// New constructs a Store, creating the indexes it needs if absent.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	sessionsCollection := opts.SessionsCollection
	if sessionsCollection == "" {
		sessionsCollection = defaultSessionsCollection
	}
	runsCollection := opts.RunsCollection
	if runsCollection == "" {
		runsCollection = defaultRunsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	sessColl := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(sessionsCollection)}
	runColl := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(runsCollection)}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(ictx, sessColl, runColl); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, sessions: sessColl, runs: runColl, timeout: timeout}, nil
}

var _ lifecycle.Store = (*Store)(nil)

// Name identifies this health.Pinger.
func (s *Store) Name() string { return "lifecycle-mongo" }

// Ping satisfies goa.design/clue/health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

func (s *Store) CreateSession(ctx context.Context, id string) (*lifecycle.Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	existing, err := s.LoadSession(ctx, id)
	if err == nil {
		if existing.Status == lifecycle.SessionEnded {
			return nil, lifecycle.ErrSessionEnded
		}
		return existing, nil
	}
	if !errors.Is(err, lifecycle.ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": id}
	update := bson.M{
		// Pure $setOnInsert: CreateSession must never mutate an existing
		// session, and Mongo rejects the same path in $set and
		// $setOnInsert on one update, so the insert-only fields stay here.
		"$setOnInsert": bson.M{
			"session_id": id,
			"status":     lifecycle.SessionActive,
			"created_at": now,
			"updated_at": now,
		},
	}
	if _, err := s.sessions.UpdateOne(wctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return nil, err
	}
	out, err := s.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.Status == lifecycle.SessionEnded {
		return nil, lifecycle.ErrSessionEnded
	}
	return out, nil
}

func (s *Store) LoadSession(ctx context.Context, id string) (*lifecycle.Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := s.sessions.FindOne(ctx, bson.M{"session_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, lifecycle.ErrSessionNotFound
		}
		return nil, err
	}
	return doc.toSession(), nil
}

func (s *Store) EndSession(ctx context.Context, id string) error {
	existing, err := s.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == lifecycle.SessionEnded {
		return nil
	}
	now := time.Now().UTC()
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"status":     lifecycle.SessionEnded,
		"ended_at":   now,
		"updated_at": now,
	}}
	_, err = s.sessions.UpdateOne(wctx, bson.M{"session_id": id}, update)
	return err
}

func (s *Store) UpsertRun(ctx context.Context, meta *lifecycle.RunMeta) error {
	if meta.RunID == "" || meta.AgentID == "" || meta.SessionID == "" {
		return errors.New("run id, agent id, and session id are required")
	}
	now := time.Now().UTC()
	startedAt := meta.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	update := bson.M{
		"$set": bson.M{
			"run_id":     meta.RunID,
			"agent_id":   meta.AgentID,
			"session_id": meta.SessionID,
			"status":     meta.Status,
			"updated_at": now,
			"labels":     meta.Labels,
			"metadata":   meta.Metadata,
		},
		// StartedAt is immutable once set: only the insert path writes it.
		"$setOnInsert": bson.M{"started_at": startedAt},
	}
	_, err := s.runs.UpdateOne(wctx, bson.M{"run_id": meta.RunID}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) LoadRun(ctx context.Context, runID string) (*lifecycle.RunMeta, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc runDocument
	if err := s.runs.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, lifecycle.ErrRunNotFound
		}
		return nil, err
	}
	return doc.toRunMeta(), nil
}

func (s *Store) ListRunsBySession(ctx context.Context, sessionID string, status lifecycle.RunStatus) ([]*lifecycle.RunMeta, error) {
	filter := bson.M{"session_id": sessionID}
	if status != "" {
		filter["status"] = status
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.runs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []*lifecycle.RunMeta
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRunMeta())
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

type sessionDocument struct {
	SessionID string     `bson:"session_id"`
	Status    string     `bson:"status"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func (doc sessionDocument) toSession() *lifecycle.Session {
	var endedAt *time.Time
	if doc.EndedAt != nil {
		t := doc.EndedAt.UTC()
		endedAt = &t
	}
	return &lifecycle.Session{
		ID:        doc.SessionID,
		Status:    lifecycle.SessionStatus(doc.Status),
		CreatedAt: doc.CreatedAt.UTC(),
		EndedAt:   endedAt,
	}
}

type runDocument struct {
	RunID     string            `bson:"run_id"`
	AgentID   string            `bson:"agent_id"`
	SessionID string            `bson:"session_id"`
	Status    string            `bson:"status"`
	StartedAt time.Time         `bson:"started_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
}

func (doc runDocument) toRunMeta() *lifecycle.RunMeta {
	return &lifecycle.RunMeta{
		RunID:     doc.RunID,
		AgentID:   doc.AgentID,
		SessionID: doc.SessionID,
		Status:    lifecycle.RunStatus(doc.Status),
		StartedAt: doc.StartedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
		Labels:    doc.Labels,
		Metadata:  doc.Metadata,
	}
}

func ensureIndexes(ctx context.Context, sessions, runs collection) error {
	if _, err := sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "status", Value: 1}},
	}); err != nil {
		return err
	}
	return nil
}

// Thin wrapper interfaces keep the store unit-testable without a live Mongo
// server, mirroring the teacher's collection/cursor/singleResult split.
type (
	collection interface {
		FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
		Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
		UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
		Indexes() indexView
	}
	indexView interface {
		CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
	}
	singleResult interface {
		Decode(val any) error
	}
	cursor interface {
		Close(ctx context.Context) error
		Decode(val any) error
		Err() error
		Next(ctx context.Context) bool
	}
)

type mongoCollection struct{ coll *mongodriver.Collection }

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView { return c.coll.Indexes() }
