package fhir

import "time"

// DocumentEnvelope is the broker wire format wrapping one inbound document.
type DocumentEnvelope struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Deleted   bool      `json:"deleted,omitempty"`
	Document  Document  `json:"document"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata carries pipeline bookkeeping alongside the document.
type Metadata struct {
	ReceivedAt   time.Time `json:"received_at,omitempty"`
	AppliedRules []string  `json:"applied_rules,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
}
