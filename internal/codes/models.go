package codes

import "time"

// Mapping translates one code from an external coding system into the value
// the tracker registry expects. Scripts see the resolved mappings for a
// document's system as a plain string map.
type Mapping struct {
	ID         string    `json:"id" bson:"_id,omitempty"`
	System     string    `json:"system" bson:"system"`
	Code       string    `json:"code" bson:"code"`
	MappedCode string    `json:"mapped_code" bson:"mapped_code"`
	Enabled    bool      `json:"enabled" bson:"enabled"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}
