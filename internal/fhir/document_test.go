package fhir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_SubjectRef(t *testing.T) {
	patient := &Document{ID: "pat-1", Kind: KindPatient}
	assert.Equal(t, "pat-1", patient.SubjectRef())

	observation := &Document{
		Kind: KindObservation,
		Payload: map[string]interface{}{
			"subject": map[string]interface{}{"reference": "Patient/pat-1"},
		},
	}
	assert.Equal(t, "Patient/pat-1", observation.SubjectRef())

	missing := &Document{Kind: KindObservation, Payload: map[string]interface{}{}}
	assert.Equal(t, "", missing.SubjectRef())
}

func TestDocument_StageRef(t *testing.T) {
	doc := &Document{Payload: map[string]interface{}{"programStage": "stage-1"}}
	assert.Equal(t, "stage-1", doc.StageRef())

	assert.Equal(t, "", (&Document{Payload: map[string]interface{}{}}).StageRef())
}

func TestDocument_Status_Lowercased(t *testing.T) {
	doc := &Document{Payload: map[string]interface{}{"status": "Final"}}
	assert.Equal(t, "final", doc.Status())
}

func TestDocument_EffectiveTime(t *testing.T) {
	doc := &Document{Payload: map[string]interface{}{
		"effectiveDateTime": "2024-06-10T09:00:00Z",
	}}
	ts, ok := doc.EffectiveTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), ts)

	nested := &Document{Payload: map[string]interface{}{
		"period": map[string]interface{}{"start": "2024-06-01T00:00:00Z"},
	}}
	ts, ok = nested.EffectiveTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ts)

	_, ok = (&Document{Payload: map[string]interface{}{}}).EffectiveTime()
	assert.False(t, ok)

	_, ok = (&Document{Payload: map[string]interface{}{"effectiveDateTime": "garbage"}}).EffectiveTime()
	assert.False(t, ok)
}

func TestAuthorAccessorFor(t *testing.T) {
	observation := &Document{
		Kind: KindObservation,
		Payload: map[string]interface{}{
			"performer": []interface{}{
				map[string]interface{}{"reference": "Organization/ou-1"},
			},
		},
	}
	ref, ok := AuthorAccessorFor(KindObservation).AuthorRef(observation)
	require.True(t, ok)
	assert.Equal(t, "Organization/ou-1", ref)

	patient := &Document{
		Kind: KindPatient,
		Payload: map[string]interface{}{
			"managingOrganization": map[string]interface{}{"reference": "Organization/ou-2"},
		},
	}
	ref, ok = AuthorAccessorFor(KindPatient).AuthorRef(patient)
	require.True(t, ok)
	assert.Equal(t, "Organization/ou-2", ref)

	encounter := &Document{
		Kind: KindEncounter,
		Payload: map[string]interface{}{
			"location": map[string]interface{}{"reference": "Location/ou-3"},
		},
	}
	ref, ok = AuthorAccessorFor(KindEncounter).AuthorRef(encounter)
	require.True(t, ok)
	assert.Equal(t, "Location/ou-3", ref)

	assert.Nil(t, AuthorAccessorFor(Kind("Unknown")))

	_, ok = AuthorAccessorFor(KindObservation).AuthorRef(&Document{Payload: map[string]interface{}{}})
	assert.False(t, ok)
}
