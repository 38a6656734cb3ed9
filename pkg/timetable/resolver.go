package timetable

import (
	"fmt"
	"time"
)

// VariantSource supplies date-filtered variants and associations per
// precedence class. Store implements it against Mongo; tests supply
// in-memory fakes.
type VariantSource interface {
	VariantsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*ScheduleVariant, error)
	AssociationsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*Association, error)
}

// OutcomeKind tags the result of resolving a UID on a date.
type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeResolved
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResolved:
		return "resolved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNotFound:
		return "notfound"
	}

	return "unknown"
}

// Outcome is the resolution result. Variant is populated only when Kind
// is OutcomeResolved.
type Outcome struct {
	Kind    OutcomeKind
	Variant *ScheduleVariant
}

// PrecedenceConflictError reports more than one valid variant for the
// same UID within the winning precedence class. The conflict is
// surfaced rather than tie-broken.
type PrecedenceConflictError struct {
	TrainUID string
	Date     time.Time
	Class    PrecedenceClass
	Count    int
}

func (e *PrecedenceConflictError) Error() string {
	return fmt.Sprintf(
		"precedence conflict: %d valid %s variants for %s on %s",
		e.Count, e.Class, e.TrainUID, e.Date.Format("2006-01-02"),
	)
}

// Resolver applies STP precedence over a VariantSource.
type Resolver struct {
	Source VariantSource
}

func NewResolver(source VariantSource) *Resolver {
	return &Resolver{Source: source}
}

// Resolve evaluates the four precedence classes in order for one UID on
// one date. The first class containing a valid variant decides the
// outcome: a cancellation variant yields OutcomeCancelled, any other
// class yields OutcomeResolved with that variant. No class matching
// yields OutcomeNotFound.
func (r *Resolver) Resolve(trainUID string, date time.Time) (Outcome, error) {
	for _, class := range PrecedenceOrder {
		variants, err := r.Source.VariantsFor(class, trainUID, date)
		if err != nil {
			return Outcome{}, err
		}

		if len(variants) == 0 {
			continue
		}

		if len(variants) > 1 {
			return Outcome{}, &PrecedenceConflictError{
				TrainUID: trainUID,
				Date:     date,
				Class:    class,
				Count:    len(variants),
			}
		}

		if class == ClassCancellation {
			return Outcome{Kind: OutcomeCancelled}, nil
		}

		return Outcome{Kind: OutcomeResolved, Variant: variants[0]}, nil
	}

	return Outcome{Kind: OutcomeNotFound}, nil
}

// ResolveAssociations applies precedence per association pair. For each
// (main, associated, location) pair the highest class wins; a winning
// cancellation suppresses the pair entirely.
func (r *Resolver) ResolveAssociations(trainUID string, date time.Time) ([]*Association, error) {
	type pairKey struct {
		mainUID       string
		associatedUID string
		location      string
	}

	decided := map[pairKey]bool{}
	var resolved []*Association

	for _, class := range PrecedenceOrder {
		associations, err := r.Source.AssociationsFor(class, trainUID, date)
		if err != nil {
			return nil, err
		}

		for _, association := range associations {
			key := pairKey{association.MainUID, association.AssociatedUID, association.Location}
			if decided[key] {
				continue
			}
			decided[key] = true

			if class != ClassCancellation {
				resolved = append(resolved, association)
			}
		}
	}

	return resolved, nil
}
