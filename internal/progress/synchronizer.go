package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/workoutsync/internal/localcache"
	"github.com/2beens/workoutsync/internal/telemetry/metrics"
	"github.com/2beens/workoutsync/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	userSettingsField = "userSettings"
	patchMethod       = "PATCH"
)

var ErrCardNotFound = errors.New("card not found")

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=progress_test

// remoteAccount mirrors documents to the user's account. Implemented by the
// account client (inline pushes) and by the outbox (write-behind).
type remoteAccount interface {
	FetchSettings(ctx context.Context, userID string) (*Settings, error)
	PushProgram(ctx context.Context, program Program, userID string) error
	PatchField(ctx context.Context, field, method, userID string, document any) error
}

type SynchronizerParams struct {
	Store  localcache.Store
	Cards  *CardRegistry
	Remote remoteAccount // nil disables remote sync

	MetricsManager     *metrics.Manager
	Location           *time.Location
	MaxConflictRetries int
	// NowFunc defaults to time.Now, injected in tests
	NowFunc func() time.Time
}

// Synchronizer records completed workouts and their statistics in the local
// cache and mirrors them to the remote account when an identity exists. The
// local cache is the source of truth; remote failures are logged, never returned.
type Synchronizer struct {
	store          localcache.Store
	cards          *CardRegistry
	remote         remoteAccount
	metricsManager *metrics.Manager
	location       *time.Location
	maxRetries     int
	nowFunc        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewSynchronizer(params SynchronizerParams) *Synchronizer {
	s := &Synchronizer{
		store:          params.Store,
		cards:          params.Cards,
		remote:         params.Remote,
		metricsManager: params.MetricsManager,
		location:       params.Location,
		maxRetries:     params.MaxConflictRetries,
		nowFunc:        params.NowFunc,
		locks:          make(map[string]*sync.Mutex),
	}
	if s.cards == nil {
		s.cards = NewCardRegistry(nil)
	}
	if s.metricsManager == nil {
		s.metricsManager = metrics.NewTestManager()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s
}

func (s *Synchronizer) lock(key string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Card returns the registry card with the given id.
func (s *Synchronizer) Card(id string) (Card, bool) {
	return s.cards.FindByID(id)
}

// Identity returns the stored user identity; found is false if there is none.
func (s *Synchronizer) Identity(ctx context.Context) (Identity, bool, error) {
	var identity Identity
	_, found, err := localcache.ReadJSON(ctx, s.store, localcache.KeyIdentity, &identity)
	if err != nil {
		return Identity{}, false, fmt.Errorf("read identity: %w", err)
	}
	if !found || identity.UserID == "" {
		return Identity{}, false, nil
	}
	return identity, true, nil
}

// FinishWorkout marks the card with the given id completed and persists it.
func (s *Synchronizer) FinishWorkout(ctx context.Context, id string) (Card, error) {
	card, found := s.cards.FindByID(id)
	if !found {
		return Card{}, ErrCardNotFound
	}
	card.Completed = true
	if err := s.CompleteWorkout(ctx, card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// CompleteWorkout persists a completion decided upstream: card.Completed is
// expected to be true already. Matching program entries are marked completed
// and the program is pushed remotely when an identity exists. The card
// snapshot is written whether or not a program exists.
//
// Only cards held by the registry are accepted; any other card returns
// ErrCardNotFound before anything is written.
func (s *Synchronizer) CompleteWorkout(ctx context.Context, card Card) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "synchronizer.completeWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("card.id", card.ID))

	if !card.Completed {
		log.Warnf("complete workout: card [%s] is not marked completed, persisting as is", card.ID)
	}
	if !s.cards.Apply(card) {
		return fmt.Errorf("complete workout [%s]: %w", card.ID, ErrCardNotFound)
	}

	program, err := s.updateProgram(ctx, card.ID)
	if err != nil {
		return err
	}

	if program != nil {
		identity, found, err := s.Identity(ctx)
		if err != nil {
			return err
		}
		if found {
			s.pushProgram(ctx, program, identity.UserID)
		}
	}

	unlock := s.lock(localcache.KeyWorkoutCards)
	defer unlock()
	if _, err := localcache.WriteJSON(ctx, s.store, localcache.KeyWorkoutCards, s.cards.Snapshot(), localcache.AnyRevision); err != nil {
		return fmt.Errorf("write workout cards: %w", err)
	}

	if card.Completed {
		s.metricsManager.CounterWorkoutsCompleted.Inc()
	}
	return nil
}

// updateProgram marks the workout completed in the stored program. It returns
// nil (and no error) when no program is stored.
func (s *Synchronizer) updateProgram(ctx context.Context, cardID string) (Program, error) {
	unlock := s.lock(localcache.KeyWorkoutProgram)
	defer unlock()

	for attempt := 0; ; attempt++ {
		var program Program
		rev, found, err := localcache.ReadJSON(ctx, s.store, localcache.KeyWorkoutProgram, &program)
		if err != nil {
			return nil, fmt.Errorf("read workout program: %w", err)
		}
		if !found {
			log.Debugf("complete workout [%s]: no workout program stored, skipping program update", cardID)
			s.metricsManager.CounterLedgerSkipped.WithLabelValues("no_program").Inc()
			return nil, nil
		}

		if matched := program.MarkCompleted(cardID); matched == 0 {
			log.Debugf("complete workout [%s]: no matching program entry", cardID)
		}

		_, err = localcache.WriteJSON(ctx, s.store, localcache.KeyWorkoutProgram, program, rev)
		if err == nil {
			return program, nil
		}
		if !s.retryOnConflict(err, localcache.KeyWorkoutProgram, attempt) {
			return nil, fmt.Errorf("write workout program: %w", err)
		}
	}
}

// RecordStatistics merges one session into the stored settings: weekly and
// lifetime totals, and the date keyed ledger of the current week. Without
// stored settings it does nothing; without a week index only the ledger is skipped.
func (s *Synchronizer) RecordStatistics(ctx context.Context, stat StatData) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "synchronizer.recordStatistics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	settings, err := s.updateSettings(ctx, stat)
	if err != nil {
		return err
	}
	if settings == nil {
		return nil
	}
	s.metricsManager.CounterStatisticsRecorded.Inc()

	identity, found, err := s.Identity(ctx)
	if err != nil {
		return err
	}
	if found {
		s.patchSettings(ctx, settings, identity.UserID)
	}
	return nil
}

func (s *Synchronizer) updateSettings(ctx context.Context, stat StatData) (*Settings, error) {
	unlock := s.lock(localcache.KeyUserSettings)
	defer unlock()

	date := ISODate(s.nowFunc(), s.location)

	for attempt := 0; ; attempt++ {
		settings := &Settings{}
		rev, found, err := localcache.ReadJSON(ctx, s.store, localcache.KeyUserSettings, settings)
		if err != nil {
			return nil, fmt.Errorf("read user settings: %w", err)
		}
		if !found {
			log.Debugln("record statistics: no user settings stored, skipping")
			s.metricsManager.CounterLedgerSkipped.WithLabelValues("no_settings").Inc()
			return nil, nil
		}

		settings.ApplyTotals(stat)

		weekIndex, found, err := s.weekIndex(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			s.addToLedger(settings, weekIndex, date, stat)
		} else {
			log.Debugln("record statistics: no week index stored, skipping ledger")
			s.metricsManager.CounterLedgerSkipped.WithLabelValues("no_week_index").Inc()
		}

		_, err = localcache.WriteJSON(ctx, s.store, localcache.KeyUserSettings, settings, rev)
		if err == nil {
			return settings, nil
		}
		if !s.retryOnConflict(err, localcache.KeyUserSettings, attempt) {
			return nil, fmt.Errorf("write user settings: %w", err)
		}
	}
}

func (s *Synchronizer) addToLedger(settings *Settings, weekIndex int, date string, stat StatData) {
	ledger, ok := settings.EnsureWeek(weekIndex)
	if !ok {
		log.Warnf("record statistics: week index %d too far past %d stored weeks, skipping ledger", weekIndex, len(settings.Progress))
		s.metricsManager.CounterLedgerSkipped.WithLabelValues("week_index_out_of_range").Inc()
		return
	}
	ledger.Add(date, stat)
}

func (s *Synchronizer) weekIndex(ctx context.Context) (int, bool, error) {
	var weekIndex int
	_, found, err := localcache.ReadJSON(ctx, s.store, localcache.KeyWeekIndex, &weekIndex)
	if err != nil {
		return 0, false, fmt.Errorf("read week index: %w", err)
	}
	if !found {
		return 0, false, nil
	}
	if weekIndex < 0 {
		log.Warnf("record statistics: negative week index %d ignored", weekIndex)
		return 0, false, nil
	}
	return weekIndex, true, nil
}

func (s *Synchronizer) retryOnConflict(err error, key string, attempt int) bool {
	if !errors.Is(err, localcache.ErrConflict) {
		return false
	}
	s.metricsManager.CounterDocumentConflicts.WithLabelValues(key).Inc()
	if attempt >= s.maxRetries {
		return false
	}
	log.Warnf("document [%s] changed while updating, retrying (attempt %d)", key, attempt+1)
	return true
}

// Settings returns the stored settings, falling back to the remote account
// when none are stored locally and an identity exists. Both missing -> nil, nil.
func (s *Synchronizer) Settings(ctx context.Context) (_ *Settings, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "synchronizer.settings")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	settings := &Settings{}
	_, found, err := localcache.ReadJSON(ctx, s.store, localcache.KeyUserSettings, settings)
	if err != nil {
		return nil, fmt.Errorf("read user settings: %w", err)
	}
	if found {
		return settings, nil
	}

	identity, found, err := s.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if !found || s.remote == nil {
		return nil, nil
	}

	remoteSettings, err := s.remote.FetchSettings(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch remote settings: %w", err)
	}
	return remoteSettings, nil
}

func (s *Synchronizer) pushProgram(ctx context.Context, program Program, userID string) {
	if s.remote == nil {
		return
	}
	if err := s.remote.PushProgram(ctx, program, userID); err != nil {
		log.Errorf("push workout program for user [%s]: %s", userID, err)
		return
	}
	log.Tracef("workout program pushed for user [%s]", userID)
}

func (s *Synchronizer) patchSettings(ctx context.Context, settings *Settings, userID string) {
	if s.remote == nil {
		return
	}
	if err := s.remote.PatchField(ctx, userSettingsField, patchMethod, userID, settings); err != nil {
		log.Errorf("patch user settings for user [%s]: %s", userID, err)
		return
	}
	log.Tracef("user settings patched for user [%s]", userID)
}
