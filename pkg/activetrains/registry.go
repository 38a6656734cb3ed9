package activetrains

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/railwatch/railwatch/pkg/timetable"
)

// CutoverHour is when one railway day ends and the next begins, in the
// railway's local civil time.
const CutoverHour = 2

// TimetableSource supplies the resolved schedules a day is built from.
type TimetableSource interface {
	ActiveUIDs(date time.Time) ([]string, error)
	Resolve(trainUID string, date time.Time) (timetable.Outcome, error)
	ResolveAssociations(trainUID string, date time.Time) ([]*timetable.Association, error)
}

// storeSource adapts the Mongo-backed store and resolver into a
// TimetableSource.
type storeSource struct {
	store    *timetable.Store
	resolver *timetable.Resolver
}

func NewStoreSource(store *timetable.Store) TimetableSource {
	return &storeSource{
		store:    store,
		resolver: timetable.NewResolver(store),
	}
}

func (s *storeSource) ActiveUIDs(date time.Time) ([]string, error) {
	return s.store.ActiveUIDs(date)
}

func (s *storeSource) Resolve(trainUID string, date time.Time) (timetable.Outcome, error) {
	return s.resolver.Resolve(trainUID, date)
}

func (s *storeSource) ResolveAssociations(trainUID string, date time.Time) ([]*timetable.Association, error) {
	return s.resolver.ResolveAssociations(trainUID, date)
}

// State is the registry lifecycle for one railway day.
type State int32

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateRefreshing
	StateRetiring
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateRetiring:
		return "retiring"
	}

	return "unknown"
}

// RebuildError wraps a failed day build. The previously serving
// registry stays in place when one of these is returned.
type RebuildError struct {
	Date time.Time
	Err  error
}

func (e *RebuildError) Error() string {
	return fmt.Sprintf("registry rebuild for %s failed: %s", e.Date.Format("2006-01-02"), e.Err)
}

func (e *RebuildError) Unwrap() error {
	return e.Err
}

// day is one railway day's worth of active trains plus its lookup
// indices. Immutable once built; replaced wholesale on refresh.
type day struct {
	date       time.Time
	trains     map[string]*ActiveTrain
	byHeadcode map[string][]*ActiveTrain
	byTiploc   map[string][]*ActiveTrain
}

func (d *day) index() {
	d.byHeadcode = map[string][]*ActiveTrain{}
	d.byTiploc = map[string][]*ActiveTrain{}

	for _, train := range d.trains {
		if train.Headcode != "" {
			d.byHeadcode[train.Headcode] = append(d.byHeadcode[train.Headcode], train)
		}

		seen := map[string]bool{}
		for _, stop := range train.Stops {
			if seen[stop.Tiploc] {
				continue
			}
			seen[stop.Tiploc] = true
			d.byTiploc[stop.Tiploc] = append(d.byTiploc[stop.Tiploc], train)
		}
	}
}

// Manager owns the current and next railway day registries. Rebuilds
// construct a complete replacement day and swap it in atomically, so
// readers never observe a partially built registry.
type Manager struct {
	Source    TimetableSource
	LateDwell LateDwellConfig

	location *time.Location

	state    atomic.Int32
	current  atomic.Pointer[day]
	tomorrow atomic.Pointer[day]
}

func NewManager(source TimetableSource, lateDwell LateDwellConfig) *Manager {
	location, err := time.LoadLocation("Europe/London")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load railway timezone")
	}

	manager := &Manager{
		Source:    source,
		LateDwell: lateDwell,
		location:  location,
	}
	manager.state.Store(int32(StateEmpty))

	return manager
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// Location is the railway's local timezone.
func (m *Manager) Location() *time.Location {
	return m.location
}

// RailwayDate maps an instant onto its railway day: before the 02:00
// cutover an instant still belongs to the previous civil day.
func (m *Manager) RailwayDate(at time.Time) time.Time {
	local := at.In(m.location)
	if local.Hour() < CutoverHour {
		local = local.AddDate(0, 0, -1)
	}

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// LoadToday builds and swaps in the registry for the current railway
// day. On failure any previously serving registry is retained.
func (m *Manager) LoadToday() error {
	return m.LoadDay(m.RailwayDate(time.Now()))
}

// LoadDay builds and swaps in the registry for a specific railway day.
func (m *Manager) LoadDay(date time.Time) error {
	if m.current.Load() == nil {
		m.state.Store(int32(StateLoading))
	} else {
		m.state.Store(int32(StateRefreshing))
	}

	built, err := m.buildDay(date)
	if err != nil {
		if m.current.Load() != nil {
			m.state.Store(int32(StateReady))
		} else {
			m.state.Store(int32(StateEmpty))
		}

		return &RebuildError{Date: date, Err: err}
	}

	m.current.Store(built)
	m.state.Store(int32(StateReady))

	return nil
}

// PrepareTomorrow pre-builds the next railway day so the cutover swap
// is instant.
func (m *Manager) PrepareTomorrow() error {
	date := m.RailwayDate(time.Now()).AddDate(0, 0, 1)

	built, err := m.buildDay(date)
	if err != nil {
		return &RebuildError{Date: date, Err: err}
	}

	m.tomorrow.Store(built)

	log.Info().
		Str("date", date.Format("2006-01-02")).
		Int("trains", len(built.trains)).
		Msg("Prepared next railway day")

	return nil
}

// Rollover retires the current day at cutover and promotes the prepared
// next day, falling back to a fresh load when none was prepared. A
// failed fresh load keeps the old registry serving.
func (m *Manager) Rollover() error {
	date := m.RailwayDate(time.Now())

	current := m.current.Load()
	if current != nil && current.date.Equal(date) {
		return nil
	}

	m.state.Store(int32(StateRetiring))

	prepared := m.tomorrow.Swap(nil)
	if prepared != nil && prepared.date.Equal(date) {
		m.current.Store(prepared)
		m.state.Store(int32(StateReady))

		log.Info().
			Str("date", date.Format("2006-01-02")).
			Int("trains", len(prepared.trains)).
			Msg("Rolled over to prepared railway day")

		return nil
	}

	built, err := m.buildDay(date)
	if err != nil {
		m.state.Store(int32(StateReady))

		return &RebuildError{Date: date, Err: err}
	}

	m.current.Store(built)
	m.state.Store(int32(StateReady))

	log.Info().
		Str("date", date.Format("2006-01-02")).
		Int("trains", len(built.trains)).
		Msg("Rolled over to freshly loaded railway day")

	return nil
}

// buildDay resolves every active UID for the date in parallel and
// assembles a complete, indexed day.
func (m *Manager) buildDay(date time.Time) (*day, error) {
	uids, err := m.Source.ActiveUIDs(date)
	if err != nil {
		return nil, err
	}

	built := &day{
		date:   date,
		trains: map[string]*ActiveTrain{},
	}

	var mutex sync.Mutex
	workers := pool.New().WithMaxGoroutines(runtime.NumCPU())

	for _, uid := range uids {
		uid := uid

		workers.Go(func() {
			train, err := m.buildTrain(uid, date)
			if err != nil {
				log.Warn().
					Err(err).
					Str("trainuid", uid).
					Str("date", date.Format("2006-01-02")).
					Msg("Failed to resolve train for railway day")

				return
			}

			if train == nil {
				return
			}

			mutex.Lock()
			built.trains[uid] = train
			mutex.Unlock()
		})
	}

	workers.Wait()

	built.index()

	log.Info().
		Str("date", date.Format("2006-01-02")).
		Int("uids", len(uids)).
		Int("trains", len(built.trains)).
		Msg("Built railway day registry")

	return built, nil
}

func (m *Manager) buildTrain(uid string, date time.Time) (*ActiveTrain, error) {
	outcome, err := m.Source.Resolve(uid, date)
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case timetable.OutcomeNotFound:
		return nil, nil
	case timetable.OutcomeCancelled:
		return NewCancelledTrain(uid, date), nil
	}

	train := NewActiveTrain(outcome.Variant, date, m.LateDwell)

	associations, err := m.Source.ResolveAssociations(uid, date)
	if err != nil {
		return nil, err
	}

	for _, association := range associations {
		train.Associations = append(train.Associations, linkFor(association, uid))
	}

	return train, nil
}

// linkFor orients an association from the perspective of one of its two
// trains. Joins and divides read the same from either side; next-day
// workings invert to "previous working" when seen from the associated
// train.
func linkFor(association *timetable.Association, uid string) AssociationLink {
	link := AssociationLink{
		Category: association.Category,
		OtherUID: association.AssociatedUID,
		Location: association.Location,
	}

	if association.MainUID == uid {
		return link
	}

	link.OtherUID = association.MainUID
	if association.Category == timetable.AssociationNextDay {
		link.Category = "PR"
	}

	return link
}

// RunLifecycle keeps the registry rolled over and periodically
// refreshed until the stop channel closes. The next day is prepared an
// hour ahead of cutover.
func (m *Manager) RunLifecycle(stop <-chan struct{}, refreshInterval time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastRefresh := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := m.Rollover(); err != nil {
				log.Error().Err(err).Msg("Railway day rollover failed, keeping previous registry")
			}

			local := now.In(m.location)
			if local.Hour() == CutoverHour-1 && m.tomorrow.Load() == nil {
				if err := m.PrepareTomorrow(); err != nil {
					log.Error().Err(err).Msg("Failed to prepare next railway day")
				}
			}

			if refreshInterval > 0 && now.Sub(lastRefresh) >= refreshInterval {
				lastRefresh = now
				if err := m.LoadToday(); err != nil {
					log.Error().Err(err).Msg("Registry refresh failed, keeping previous registry")
				}
			}
		}
	}
}

// snapshot deep-copies a train under its lock so callers never observe
// later mutation.
func snapshot(train *ActiveTrain) *ActiveTrain {
	train.Lock()
	defer train.Unlock()

	var copied ActiveTrain
	if err := copier.CopyWithOption(&copied, train, copier.Option{DeepCopy: true}); err != nil {
		log.Error().Err(err).Str("trainuid", train.TrainUID).Msg("Failed to snapshot train")

		return nil
	}

	return &copied
}

// FindByUID returns a point-in-time copy of one train.
func (m *Manager) FindByUID(trainUID string) (*ActiveTrain, bool) {
	current := m.current.Load()
	if current == nil {
		return nil, false
	}

	train, ok := current.trains[trainUID]
	if !ok {
		return nil, false
	}

	copied := snapshot(train)

	return copied, copied != nil
}

// FindByHeadcode returns copies of every train carrying the headcode.
// Headcodes repeat across operators so multiple matches are normal.
func (m *Manager) FindByHeadcode(headcode string) []*ActiveTrain {
	current := m.current.Load()
	if current == nil {
		return nil
	}

	var matches []*ActiveTrain
	for _, train := range current.byHeadcode[headcode] {
		if copied := snapshot(train); copied != nil {
			matches = append(matches, copied)
		}
	}

	return matches
}

// FindByTiploc returns copies of every train calling or passing at a
// location today.
func (m *Manager) FindByTiploc(tiploc string) []*ActiveTrain {
	current := m.current.Load()
	if current == nil {
		return nil
	}

	var matches []*ActiveTrain
	for _, train := range current.byTiploc[tiploc] {
		if copied := snapshot(train); copied != nil {
			matches = append(matches, copied)
		}
	}

	return matches
}

// Snapshot returns copies of every train in the current registry.
func (m *Manager) Snapshot() []*ActiveTrain {
	current := m.current.Load()
	if current == nil {
		return nil
	}

	var trains []*ActiveTrain
	for _, train := range current.trains {
		if copied := snapshot(train); copied != nil {
			trains = append(trains, copied)
		}
	}

	return trains
}

// Date returns the railway date the current registry serves.
func (m *Manager) Date() (time.Time, bool) {
	current := m.current.Load()
	if current == nil {
		return time.Time{}, false
	}

	return current.date, true
}

// live returns the live (non-copied) trains for a headcode or UID for
// the correlator, which needs to mutate them under their locks.
func (m *Manager) live(trainUID string, headcode string) []*ActiveTrain {
	current := m.current.Load()
	if current == nil {
		return nil
	}

	if trainUID != "" {
		if train, ok := current.trains[trainUID]; ok && !cancelled(train) {
			return []*ActiveTrain{train}
		}

		return nil
	}

	var trains []*ActiveTrain
	for _, train := range current.byHeadcode[headcode] {
		if !cancelled(train) {
			trains = append(trains, train)
		}
	}

	return trains
}

func cancelled(train *ActiveTrain) bool {
	train.Lock()
	defer train.Unlock()

	return train.Cancelled
}
