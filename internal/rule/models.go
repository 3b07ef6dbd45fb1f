package rule

import (
	"time"

	"trackerbridge/internal/tracker"
)

// Kind discriminates the three rule variants. The source system modeled
// these as a deep class hierarchy; here one tagged struct carries the union
// and the engine dispatches per kind.
type Kind string

const (
	KindSubject      Kind = "subject"
	KindEnrollment   Kind = "enrollment"
	KindProgramStage Kind = "programStage"
)

// DataElementRef is one data element a rule owns. Required references feed
// the "old empty" computation of the create-once idempotency guard.
type DataElementRef struct {
	Ref      string `json:"ref"`
	Required bool   `json:"required"`
}

// Scripts groups the CEL snippets a rule may define. Empty strings mean the
// script is absent and its gate is skipped.
type Scripts struct {
	Applicability           string `json:"applicability,omitempty"`
	Transform               string `json:"transform,omitempty"`
	EnrollmentDate          string `json:"enrollment_date,omitempty"`
	EventDate               string `json:"event_date,omitempty"`
	EnrollmentApplicability string `json:"enrollment_applicability,omitempty"`
	EnrollmentTransform     string `json:"enrollment_transform,omitempty"`
	Before                  string `json:"before,omitempty"`
	After                   string `json:"after,omitempty"`
	OrgUnit                 string `json:"org_unit,omitempty"`
}

// Rule binds one clinical resource type to a program (and for programStage
// rules, one stage) together with the scripts and gates controlling the
// transform.
type Rule struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Kind         Kind   `json:"kind"`
	ResourceType string `json:"resource_type"`
	ProgramID    string `json:"program_id,omitempty"`
	StageID      string `json:"stage_id,omitempty"`
	Priority     int    `json:"priority"`
	Enabled      bool   `json:"enabled"`

	ImportEnabled bool `json:"import_enabled"`
	ExportEnabled bool `json:"export_enabled"`
	CreateEnabled bool `json:"create_enabled"`
	UpdateEnabled bool `json:"update_enabled"`
	DeleteEnabled bool `json:"delete_enabled"`

	EnrollmentCreateEnabled bool `json:"enrollment_create_enabled"`
	EventCreateEnabled      bool `json:"event_create_enabled"`

	// Grouping rules own the whole event; non-grouping rules own only the
	// listed data elements.
	Grouping     bool             `json:"grouping"`
	DataElements []DataElementRef `json:"data_elements,omitempty"`

	ApplicableEnrollmentStatuses []tracker.EnrollmentStatus `json:"applicable_enrollment_statuses,omitempty"`
	ApplicableEventStatuses      []tracker.EventStatus      `json:"applicable_event_statuses,omitempty"`

	// Effective-date window relative to the per-rule period day (the event
	// due date). Nil disables the corresponding bound.
	BeforePeriodDays *int `json:"before_period_days,omitempty"`
	AfterPeriodDays  *int `json:"after_period_days,omitempty"`

	Scripts Scripts `json:"scripts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnsDataElement reports whether the rule lists the reference.
func (r *Rule) OwnsDataElement(ref string) bool {
	for _, de := range r.DataElements {
		if de.Ref == ref {
			return true
		}
	}
	return false
}

// RequiredDataElements returns the refs marked required.
func (r *Rule) RequiredDataElements() []string {
	var refs []string
	for _, de := range r.DataElements {
		if de.Required {
			refs = append(refs, de.Ref)
		}
	}
	return refs
}

// EnrollmentStatusApplicable checks the enrollment status filter. An empty
// filter accepts only ACTIVE enrollments.
func (r *Rule) EnrollmentStatusApplicable(status tracker.EnrollmentStatus) bool {
	if len(r.ApplicableEnrollmentStatuses) == 0 {
		return status == tracker.EnrollmentActive
	}
	for _, s := range r.ApplicableEnrollmentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// EventStatusApplicable checks the event status filter. An empty filter
// accepts every status.
func (r *Rule) EventStatusApplicable(status tracker.EventStatus) bool {
	if len(r.ApplicableEventStatuses) == 0 {
		return true
	}
	for _, s := range r.ApplicableEventStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type CreateRuleRequest struct {
	Name          string `json:"name" binding:"required"`
	Kind          Kind   `json:"kind" binding:"required"`
	ResourceType  string `json:"resource_type" binding:"required"`
	ProgramID     string `json:"program_id"`
	StageID       string `json:"stage_id"`
	Priority      int    `json:"priority"`
	Enabled       *bool  `json:"enabled"`
	ImportEnabled *bool  `json:"import_enabled"`
	ExportEnabled bool   `json:"export_enabled"`
	CreateEnabled bool   `json:"create_enabled"`
	UpdateEnabled bool   `json:"update_enabled"`
	DeleteEnabled bool   `json:"delete_enabled"`

	EnrollmentCreateEnabled bool `json:"enrollment_create_enabled"`
	EventCreateEnabled      bool `json:"event_create_enabled"`

	Grouping     bool             `json:"grouping"`
	DataElements []DataElementRef `json:"data_elements"`

	ApplicableEnrollmentStatuses []tracker.EnrollmentStatus `json:"applicable_enrollment_statuses"`
	ApplicableEventStatuses      []tracker.EventStatus      `json:"applicable_event_statuses"`

	BeforePeriodDays *int `json:"before_period_days"`
	AfterPeriodDays  *int `json:"after_period_days"`

	Scripts Scripts `json:"scripts"`
}

type UpdateRuleRequest struct {
	Name          *string `json:"name"`
	Priority      *int    `json:"priority"`
	Enabled       *bool   `json:"enabled"`
	ImportEnabled *bool   `json:"import_enabled"`
	ExportEnabled *bool   `json:"export_enabled"`
	CreateEnabled *bool   `json:"create_enabled"`
	UpdateEnabled *bool   `json:"update_enabled"`
	DeleteEnabled *bool   `json:"delete_enabled"`

	EnrollmentCreateEnabled *bool `json:"enrollment_create_enabled"`
	EventCreateEnabled      *bool `json:"event_create_enabled"`

	Grouping     *bool             `json:"grouping"`
	DataElements *[]DataElementRef `json:"data_elements"`

	ApplicableEnrollmentStatuses *[]tracker.EnrollmentStatus `json:"applicable_enrollment_statuses"`
	ApplicableEventStatuses      *[]tracker.EventStatus      `json:"applicable_event_statuses"`

	// A negative value clears the corresponding window bound.
	BeforePeriodDays *int `json:"before_period_days"`
	AfterPeriodDays  *int `json:"after_period_days"`

	Scripts *Scripts `json:"scripts"`
}
