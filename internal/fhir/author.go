package fhir

// AuthorAccessor exposes the single capability the org-unit lookup needs:
// the reference to the organization that authored or submitted a document.
// Each document kind stores it under a different element, so the accessor is
// selected by kind instead of reflecting over same-named fields.
type AuthorAccessor interface {
	AuthorRef(doc *Document) (string, bool)
}

// AuthorAccessorFor returns the accessor for the document kind, or nil when
// the kind carries no author information.
func AuthorAccessorFor(kind Kind) AuthorAccessor {
	switch kind {
	case KindPatient:
		return managingOrgAccessor{}
	case KindObservation:
		return performerAccessor{}
	case KindImmunization, KindEncounter:
		return serviceProviderAccessor{}
	case KindCondition, KindCarePlan:
		return recorderAccessor{}
	default:
		return nil
	}
}

type managingOrgAccessor struct{}

func (managingOrgAccessor) AuthorRef(doc *Document) (string, bool) {
	ref := doc.stringAt("managingOrganization", "reference")
	return ref, ref != ""
}

type performerAccessor struct{}

func (performerAccessor) AuthorRef(doc *Document) (string, bool) {
	performers, ok := doc.Payload["performer"].([]interface{})
	if !ok || len(performers) == 0 {
		return "", false
	}
	first, ok := performers[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	ref, _ := first["reference"].(string)
	return ref, ref != ""
}

type serviceProviderAccessor struct{}

func (serviceProviderAccessor) AuthorRef(doc *Document) (string, bool) {
	ref := doc.stringAt("serviceProvider", "reference")
	if ref == "" {
		ref = doc.stringAt("location", "reference")
	}
	return ref, ref != ""
}

type recorderAccessor struct{}

func (recorderAccessor) AuthorRef(doc *Document) (string, bool) {
	ref := doc.stringAt("recorder", "reference")
	return ref, ref != ""
}
