package scheme

import (
	"strings"
	"time"
)

// Selector filters scheme definitions down to the candidates for a cart.
type Selector struct {
	now func() time.Time
}

// NewSelector creates a Selector evaluating validity windows against the
// wall clock.
func NewSelector() *Selector {
	return &Selector{now: time.Now}
}

// NewSelectorAt creates a Selector whose notion of "today" comes from now.
func NewSelectorAt(now func() time.Time) *Selector {
	return &Selector{now: now}
}

// SelectApplicable returns the schemes that are active today, target the
// customer and restrict to at least one product present in the cart. Source
// order is preserved.
func (s *Selector) SelectApplicable(all []Scheme, lines []CartLine, customer Customer) []Scheme {
	today := s.now()

	var out []Scheme
	for _, sc := range all {
		if !IsActiveOn(sc, today) {
			continue
		}
		if !appliesTo(sc, customer) {
			continue
		}
		if !hasEligibleLine(sc, lines) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

// IsActiveOn reports whether the scheme is active and day falls within its
// validity window. Both bounds are inclusive calendar days: a bound is the
// date it names in its own location, compared with day's date in day's
// location. A zero bound is open.
func IsActiveOn(sc Scheme, day time.Time) bool {
	if sc.Status != StatusActive {
		return false
	}
	loc := day.Location()
	today := dateIn(day, loc)
	if !sc.StartDate.IsZero() && today.Before(dateIn(sc.StartDate, loc)) {
		return false
	}
	if !sc.EndDate.IsZero() && today.After(dateIn(sc.EndDate, loc)) {
		return false
	}
	return true
}

// appliesTo evaluates the scheme's applicability against the customer.
//
// Segment matching is a substring test of the customer category against the
// free-text description. It is kept for parity with existing scheme data and
// should move to a structured segment id.
func appliesTo(sc Scheme, customer Customer) bool {
	switch sc.Applicability {
	case ApplicableDistributor:
		return customer.Type == CustomerDistributor
	case ApplicableRetailer:
		return customer.Type == CustomerRetailer
	case ApplicableSegment:
		return customer.Category != "" && strings.Contains(sc.Description, customer.Category)
	case ApplicableAllOutlets, ApplicableArea, ApplicableZone:
		// Geography is resolved before schemes reach the engine.
		return true
	}
	return true
}

func hasEligibleLine(sc Scheme, lines []CartLine) bool {
	if len(sc.EligibleSKUs) == 0 {
		return true
	}
	return len(relevantLines(sc, lines)) > 0
}

// relevantLines returns the cart lines the scheme's SKU restriction matches,
// or every line when the scheme is unrestricted.
func relevantLines(sc Scheme, lines []CartLine) []CartLine {
	if len(sc.EligibleSKUs) == 0 {
		return lines
	}
	eligible := make(map[string]struct{}, len(sc.EligibleSKUs))
	for _, id := range sc.EligibleSKUs {
		eligible[id] = struct{}{}
	}
	var out []CartLine
	for _, line := range lines {
		if _, ok := eligible[line.ProductID]; ok {
			out = append(out, line)
		}
	}
	return out
}

// dateIn returns midnight in loc of the calendar date t names in its own
// location.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
