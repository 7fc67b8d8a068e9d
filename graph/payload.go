package graph

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "repograph",
		Category:    "repository",
		Version:     "v1",
		Description: "Candidate repository triples for graph ingestion",
		Factory:     func() any { return &RepositoryPayload{} },
	})
	if err != nil {
		panic("failed to register RepositoryPayload: " + err.Error())
	}
}

// RepositoryType is the message type of repository payloads.
var RepositoryType = message.Type{Domain: "repograph", Category: "repository", Version: "v1"}

// RepositoryPayload carries every candidate triple about one repository.
type RepositoryPayload struct {
	ID         string           `json:"id"`
	TripleData []message.Triple `json:"triples"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// EntityID returns the graph entity id.
func (p *RepositoryPayload) EntityID() string { return p.ID }

// Triples returns the payload triples.
func (p *RepositoryPayload) Triples() []message.Triple { return p.TripleData }

// Schema returns the payload message type.
func (p *RepositoryPayload) Schema() message.Type { return RepositoryType }

// Validate checks the payload is publishable.
func (p *RepositoryPayload) Validate() error {
	if p.ID == "" {
		return errors.New("entity ID is required")
	}
	if len(p.TripleData) == 0 {
		return errors.New("at least one triple is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *RepositoryPayload) MarshalJSON() ([]byte, error) {
	type Alias RepositoryPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *RepositoryPayload) UnmarshalJSON(data []byte) error {
	type Alias RepositoryPayload
	return json.Unmarshal(data, (*Alias)(p))
}
