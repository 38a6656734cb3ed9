package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	variants     map[PrecedenceClass][]*ScheduleVariant
	associations map[PrecedenceClass][]*Association
}

func (f *fakeSource) VariantsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*ScheduleVariant, error) {
	var matched []*ScheduleVariant
	for _, variant := range f.variants[class] {
		if variant.TrainUID == trainUID && variant.RunsOnDate(date) {
			matched = append(matched, variant)
		}
	}

	return matched, nil
}

func (f *fakeSource) AssociationsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*Association, error) {
	var matched []*Association
	for _, association := range f.associations[class] {
		if (association.MainUID == trainUID || association.AssociatedUID == trainUID) && association.AppliesOn(date) {
			matched = append(matched, association)
		}
	}

	return matched, nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func variant(uid string, class PrecedenceClass, from, to time.Time, daysRun string) *ScheduleVariant {
	return &ScheduleVariant{
		TrainUID: uid,
		Class:    class,
		RunsFrom: from,
		RunsTo:   to,
		DaysRun:  daysRun,
	}
}

func TestResolveSingleDayCancellationOverridesPermanent(t *testing.T) {
	source := &fakeSource{
		variants: map[PrecedenceClass][]*ScheduleVariant{
			ClassPermanent: {
				variant("P19424", ClassPermanent, date(2023, 4, 3), date(2023, 4, 28), "1111100"),
			},
			ClassCancellation: {
				variant("P19424", ClassCancellation, date(2023, 4, 7), date(2023, 4, 7), "0000100"),
			},
		},
	}
	resolver := NewResolver(source)

	// Good Friday is cancelled, the surrounding weekdays still run.
	outcome, err := resolver.Resolve("P19424", date(2023, 4, 7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome.Kind)
	assert.Nil(t, outcome.Variant)

	outcome, err = resolver.Resolve("P19424", date(2023, 4, 6))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome.Kind)
	require.NotNil(t, outcome.Variant)
	assert.Equal(t, ClassPermanent, outcome.Variant.Class)
}

func TestResolveOverlayBeatsPermanent(t *testing.T) {
	permanent := variant("C54321", ClassPermanent, date(2024, 1, 1), date(2024, 12, 31), "1111111")
	overlay := variant("C54321", ClassOverlay, date(2024, 6, 10), date(2024, 6, 14), "1111100")

	source := &fakeSource{
		variants: map[PrecedenceClass][]*ScheduleVariant{
			ClassPermanent: {permanent},
			ClassOverlay:   {overlay},
		},
	}
	resolver := NewResolver(source)

	outcome, err := resolver.Resolve("C54321", date(2024, 6, 12))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome.Kind)
	assert.Same(t, overlay, outcome.Variant)

	// Outside the overlay window the permanent variant wins again.
	outcome, err = resolver.Resolve("C54321", date(2024, 6, 17))
	require.NoError(t, err)
	assert.Same(t, permanent, outcome.Variant)
}

func TestResolveDayMaskExcludesWeekend(t *testing.T) {
	source := &fakeSource{
		variants: map[PrecedenceClass][]*ScheduleVariant{
			ClassPermanent: {
				variant("W00001", ClassPermanent, date(2024, 6, 1), date(2024, 6, 30), "1111100"),
			},
		},
	}
	resolver := NewResolver(source)

	// 2024-06-15 is a Saturday.
	outcome, err := resolver.Resolve("W00001", date(2024, 6, 15))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome.Kind)

	outcome, err = resolver.Resolve("W00001", date(2024, 6, 14))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome.Kind)
}

func TestResolveUnknownUID(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	outcome, err := resolver.Resolve("X99999", date(2024, 6, 12))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome.Kind)
}

func TestResolveConflictWithinWinningClass(t *testing.T) {
	source := &fakeSource{
		variants: map[PrecedenceClass][]*ScheduleVariant{
			ClassOverlay: {
				variant("C54321", ClassOverlay, date(2024, 6, 10), date(2024, 6, 14), "1111100"),
				variant("C54321", ClassOverlay, date(2024, 6, 12), date(2024, 6, 12), "0010000"),
			},
		},
	}
	resolver := NewResolver(source)

	_, err := resolver.Resolve("C54321", date(2024, 6, 12))
	require.Error(t, err)

	var conflict *PrecedenceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ClassOverlay, conflict.Class)
	assert.Equal(t, 2, conflict.Count)
}

func TestResolveConflictInLowerClassIsMasked(t *testing.T) {
	source := &fakeSource{
		variants: map[PrecedenceClass][]*ScheduleVariant{
			ClassOverlay: {
				variant("C54321", ClassOverlay, date(2024, 6, 12), date(2024, 6, 12), "0010000"),
			},
			ClassPermanent: {
				variant("C54321", ClassPermanent, date(2024, 1, 1), date(2024, 12, 31), "1111111"),
				variant("C54321", ClassPermanent, date(2024, 6, 1), date(2024, 6, 30), "1111111"),
			},
		},
	}
	resolver := NewResolver(source)

	// The ambiguous permanent pair never gets evaluated because the
	// overlay wins first.
	outcome, err := resolver.Resolve("C54321", date(2024, 6, 12))
	require.NoError(t, err)
	assert.Equal(t, ClassOverlay, outcome.Variant.Class)
}

func association(mainUID, associatedUID, location, category string, class PrecedenceClass, from, to time.Time, daysRun string) *Association {
	return &Association{
		MainUID:       mainUID,
		AssociatedUID: associatedUID,
		Category:      category,
		Location:      location,
		Class:         class,
		DateFrom:      from,
		DateTo:        to,
		DaysRun:       daysRun,
	}
}

func TestResolveAssociationsPrecedencePerPair(t *testing.T) {
	source := &fakeSource{
		associations: map[PrecedenceClass][]*Association{
			ClassPermanent: {
				association("A11111", "B22222", "CREWE", AssociationJoin, ClassPermanent, date(2024, 1, 1), date(2024, 12, 31), "1111111"),
				association("A11111", "C33333", "PRST", AssociationDivide, ClassPermanent, date(2024, 1, 1), date(2024, 12, 31), "1111111"),
			},
			ClassOverlay: {
				association("A11111", "B22222", "CREWE", AssociationNextDay, ClassOverlay, date(2024, 6, 12), date(2024, 6, 12), "0010000"),
			},
			ClassCancellation: {
				association("A11111", "C33333", "PRST", AssociationDivide, ClassCancellation, date(2024, 6, 12), date(2024, 6, 12), "0010000"),
			},
		},
	}
	resolver := NewResolver(source)

	resolved, err := resolver.ResolveAssociations("A11111", date(2024, 6, 12))
	require.NoError(t, err)

	// The CREWE pair resolves to its overlay, the PRST pair is
	// suppressed by its cancellation.
	require.Len(t, resolved, 1)
	assert.Equal(t, AssociationNextDay, resolved[0].Category)
	assert.Equal(t, "CREWE", resolved[0].Location)

	// On another day both permanent associations stand.
	resolved, err = resolver.ResolveAssociations("A11111", date(2024, 6, 13))
	require.NoError(t, err)
	assert.Len(t, resolved, 2)
}

func TestDayMaskMondayIsIndexZero(t *testing.T) {
	// 2024-06-10 is a Monday.
	assert.True(t, DayMaskRunsOn("1000000", date(2024, 6, 10)))
	assert.False(t, DayMaskRunsOn("0111111", date(2024, 6, 10)))
	assert.True(t, DayMaskRunsOn("0000001", date(2024, 6, 16)))
}

func TestParseAllowanceSecs(t *testing.T) {
	assert.Equal(t, 0, ParseAllowanceSecs("  "))
	assert.Equal(t, 120, ParseAllowanceSecs("2 "))
	assert.Equal(t, 150, ParseAllowanceSecs("2H"))
	assert.Equal(t, 30, ParseAllowanceSecs("H "))
}
