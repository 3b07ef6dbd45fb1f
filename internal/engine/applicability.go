package engine

import (
	"trackerbridge/internal/fhir"
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
	"time"
)

// stageRefMatches checks the document's own program-stage reference, when it
// carries one, against the stage the rule targets.
func stageRefMatches(r *rule.Rule, doc *fhir.Document) bool {
	ref := doc.StageRef()
	return ref == "" || ref == r.StageID
}

// withinEffectiveWindow checks the rule's before/after day thresholds around
// the period day (the event's due date). Nil thresholds leave the
// corresponding side unbounded.
func withinEffectiveWindow(r *rule.Rule, periodDay, effectiveDate time.Time) bool {
	if r.BeforePeriodDays != nil {
		lower := dateOnly(periodDay).AddDate(0, 0, -*r.BeforePeriodDays)
		if dateOnly(effectiveDate).Before(lower) {
			return false
		}
	}
	if r.AfterPeriodDays != nil {
		upper := dateOnly(periodDay).AddDate(0, 0, *r.AfterPeriodDays)
		if dateOnly(effectiveDate).After(upper) {
			return false
		}
	}
	return true
}

// oldEmpty reports whether the event counts as unpopulated for the rule:
// true unless at least one required data element holds a non-blank value.
// Rules without required elements treat any existing event as populated.
func oldEmpty(r *rule.Rule, event *tracker.Event) bool {
	required := r.RequiredDataElements()
	if len(required) == 0 {
		return event == nil
	}
	if event == nil {
		return true
	}
	for _, ref := range required {
		if event.HasDataValue(ref) {
			return false
		}
	}
	return true
}
