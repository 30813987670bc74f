// Package registry holds the set of known domain agents and their public
// descriptors. Adapted from registry/store/store.go, retargeted from
// generated toolset types onto a hand-written AgentDescriptor.
package registry

import (
	"context"
	"errors"
	"strings"
)

type (
	// Transport identifies how an agent is reached.
	Transport string

	// Capabilities are the behavioral flags that gate how the invoker
	// classifies an agent's A2A task replies.
	Capabilities struct {
		LongRunning           bool
		StateTransitionHistory bool
		Streaming             bool
	}

	// Skill is one capability an agent advertises in its card.
	Skill struct {
		ID          string
		Name        string
		Description string
	}

	// AgentDescriptor is the public metadata for one agent.
	AgentDescriptor struct {
		Name         string
		Description  string
		Transport    Transport
		// Address is the peer URL for Remote, or the locator key for
		// Keyed. Unused for Local (the handle is registered separately by
		// the invoker's local-handle table).
		Address      string
		Capabilities Capabilities
		Skills       []Skill
		Tags         []string
	}

	// QueryFilter narrows a Query call. Text matches (case-insensitively,
	// as a substring) against name/description/tags; the Capabilities
	// pointers, when non-nil, additionally require the descriptor's
	// corresponding flag to equal the pointed-to value. A zero QueryFilter
	// matches every descriptor.
	QueryFilter struct {
		Text                   string
		LongRunning            *bool
		StateTransitionHistory *bool
		Streaming              *bool
	}

	// Store holds registered agent descriptors.
	Store interface {
		Register(ctx context.Context, desc AgentDescriptor) error
		Unregister(ctx context.Context, name string) error
		Get(ctx context.Context, name string) (*AgentDescriptor, error)
		List(ctx context.Context) ([]*AgentDescriptor, error)
		// Query returns descriptors matching filter: free-text against
		// name/description/tags, further narrowed by any capability flags
		// filter sets. A zero QueryFilter returns every descriptor.
		Query(ctx context.Context, filter QueryFilter) ([]*AgentDescriptor, error)
	}
)

// Matches reports whether d satisfies filter, per QueryFilter's semantics.
// Shared by the in-memory and replicated Store implementations so the
// matching rules stay identical across both; the Mongo-backed store
// expresses the same rules as a native query instead.
func Matches(d *AgentDescriptor, filter QueryFilter) bool {
	if filter.LongRunning != nil && d.Capabilities.LongRunning != *filter.LongRunning {
		return false
	}
	if filter.StateTransitionHistory != nil && d.Capabilities.StateTransitionHistory != *filter.StateTransitionHistory {
		return false
	}
	if filter.Streaming != nil && d.Capabilities.Streaming != *filter.Streaming {
		return false
	}
	if filter.Text == "" {
		return true
	}
	return matchesText(d, strings.ToLower(filter.Text))
}

func matchesText(d *AgentDescriptor, lowerText string) bool {
	if strings.Contains(strings.ToLower(d.Name), lowerText) {
		return true
	}
	if strings.Contains(strings.ToLower(d.Description), lowerText) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), lowerText) {
			return true
		}
	}
	return false
}

const (
	TransportLocal  Transport = "local"
	TransportRemote Transport = "remote"
	TransportKeyed  Transport = "keyed"
)

// ErrNotFound is returned when no descriptor is registered under a name.
var ErrNotFound = errors.New("registry: agent not found")
