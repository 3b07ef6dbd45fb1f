package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trackerbridge/internal/tracker"
)

func TestRule_EnrollmentStatusApplicable_DefaultActiveOnly(t *testing.T) {
	r := &Rule{}

	assert.True(t, r.EnrollmentStatusApplicable(tracker.EnrollmentActive))
	assert.False(t, r.EnrollmentStatusApplicable(tracker.EnrollmentCompleted))
	assert.False(t, r.EnrollmentStatusApplicable(tracker.EnrollmentCancelled))
}

func TestRule_EnrollmentStatusApplicable_ExplicitFilter(t *testing.T) {
	r := &Rule{ApplicableEnrollmentStatuses: []tracker.EnrollmentStatus{
		tracker.EnrollmentCompleted,
	}}

	assert.True(t, r.EnrollmentStatusApplicable(tracker.EnrollmentCompleted))
	assert.False(t, r.EnrollmentStatusApplicable(tracker.EnrollmentActive))
}

func TestRule_EventStatusApplicable_DefaultAcceptsAll(t *testing.T) {
	r := &Rule{}

	assert.True(t, r.EventStatusApplicable(tracker.EventActive))
	assert.True(t, r.EventStatusApplicable(tracker.EventSkipped))
}

func TestRule_EventStatusApplicable_ExplicitFilter(t *testing.T) {
	r := &Rule{ApplicableEventStatuses: []tracker.EventStatus{
		tracker.EventActive,
		tracker.EventSchedule,
	}}

	assert.True(t, r.EventStatusApplicable(tracker.EventSchedule))
	assert.False(t, r.EventStatusApplicable(tracker.EventCompleted))
}

func TestRule_OwnsDataElement(t *testing.T) {
	r := &Rule{DataElements: []DataElementRef{
		{Ref: "de_a", Required: true},
		{Ref: "de_b"},
	}}

	assert.True(t, r.OwnsDataElement("de_a"))
	assert.True(t, r.OwnsDataElement("de_b"))
	assert.False(t, r.OwnsDataElement("de_c"))
}

func TestRule_RequiredDataElements(t *testing.T) {
	r := &Rule{DataElements: []DataElementRef{
		{Ref: "de_a", Required: true},
		{Ref: "de_b"},
		{Ref: "de_c", Required: true},
	}}

	assert.Equal(t, []string{"de_a", "de_c"}, r.RequiredDataElements())
	assert.Empty(t, (&Rule{}).RequiredDataElements())
}
