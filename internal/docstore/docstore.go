// Package docstore defines the document-store abstraction used to archive
// completed conversation transcripts and ingested agent cards, separate from
// the hot key-value path in internal/kv. Grounded on the thin Mongo client
// wrapper idiom in features/session/mongo/clients/mongo/client.go.
package docstore

import "context"

// ArchivedSnapshot is a completed conversation transcript kept for audit and
// search after it leaves the hot key-value path.
type ArchivedSnapshot struct {
	ContextID string
	Turns     []ArchivedTurn
	ClosedAt  int64 // unix seconds; stamped by the caller, never time.Now() inside this package
}

// ArchivedTurn is one message in an archived transcript.
type ArchivedTurn struct {
	Role    string
	Content string
	AtUnix  int64
}

// AgentCardDocument is an ingested agent-card record.
type AgentCardDocument struct {
	Name        string
	Description string
	URL         string
	Skills      []string
	RawCard     []byte // original JSON, preserved for forward-compatible fields
}

// Store archives transcripts and indexes agent cards for operator search.
type Store interface {
	ArchiveSnapshot(ctx context.Context, snap ArchivedSnapshot) error
	FindArchivedSnapshot(ctx context.Context, contextID string) (*ArchivedSnapshot, bool, error)

	UpsertAgentCard(ctx context.Context, doc AgentCardDocument) error
	SearchAgentCards(ctx context.Context, query string) ([]AgentCardDocument, error)
}
