package registry

import (
	"context"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/tracker"
)

// SubjectResolver resolves a document's subject reference against the
// registry. Identity matching beyond the direct reference lookup lives
// upstream; this covers documents that already carry a resolved reference.
type SubjectResolver struct {
	client Client
}

func NewSubjectResolver(client Client) *SubjectResolver {
	return &SubjectResolver{client: client}
}

func (r *SubjectResolver) ResolveSubject(ctx context.Context, doc *fhir.Document) (*tracker.TrackedSubject, error) {
	return r.client.FindTrackedSubject(ctx, doc.SubjectRef())
}
