// Package autoend ends visitor parking reservations made by this application
// when the paid parking window closes. It derives a weekly schedule from the
// configuration (falling back to the provider's zone hours), fires a daily
// trigger per distinct end time and reconciles the provider's reservation
// list against the ownership store.
package autoend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhulsman/parking-monitor/internal/autoend/notifier"
	"github.com/rhulsman/parking-monitor/internal/poller"
	"github.com/rhulsman/parking-monitor/internal/provider"
	"github.com/rhulsman/parking-monitor/internal/schedule"
	"github.com/rhulsman/parking-monitor/internal/store"
)

const defaultDebounce = time.Second

// Configuration controls the auto-end behavior. Days follows the
// autoEnd.schedule config section; a nil map enables the fallback workdays.
type Configuration struct {
	Enabled  bool
	Debounce time.Duration
	Days     map[time.Weekday]schedule.DayOptions
}

// Manager owns the auto-end life cycle. It receives updates from a Poller,
// keeps the ownership store in sync with the provider and ends due
// reservations when a trigger fires.
type Manager struct {
	client    provider.Client
	poller    poller.Poller
	tracker   *store.Tracker
	notifier  notifier.Notifier
	scheduler TriggerScheduler
	location  *time.Location
	logger    *slog.Logger

	// allow current time to be set during testing
	GetCurrentTime func() time.Time

	cfg     Configuration
	reload  chan Configuration
	cancels []func()

	updateLock sync.Mutex
	lastUpdate poller.Update

	scheduleLock sync.RWMutex
	schedule     schedule.WeeklySchedule

	passLock sync.Mutex
	pruneJob atomic.Pointer[pruneJob]
	enabled  atomic.Bool
}

func New(client provider.Client, p poller.Poller, tracker *store.Tracker, n notifier.Notifier, scheduler TriggerScheduler, cfg Configuration, location *time.Location, logger *slog.Logger) *Manager {
	if location == nil {
		location = time.Local
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultDebounce
	}
	m := Manager{
		client:    client,
		poller:    p,
		tracker:   tracker,
		notifier:  n,
		scheduler: scheduler,
		location:  location,
		logger:    logger,
		cfg:       cfg,
		reload:    make(chan Configuration, 1),
	}
	m.enabled.Store(cfg.Enabled)
	return &m
}

// Run waits for the first account update, reconciles the ownership store,
// registers the daily triggers and then processes updates and configuration
// reloads until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ch := m.poller.Subscribe()
	defer m.poller.Unsubscribe(ch)

	m.logger.Debug("started")
	defer m.logger.Debug("stopped")

	var update poller.Update
	select {
	case <-ctx.Done():
		return nil
	case update = <-ch:
	}

	m.tracker.Load()
	if err := m.tracker.Retain(update.ReservationIDs()); err != nil {
		m.logger.Error("failed to prune reservation store", "err", err)
	}

	m.rebuild(ctx, update)
	defer m.cancelTriggers()

	for {
		select {
		case <-ctx.Done():
			if j := m.pruneJob.Load(); j != nil {
				j.cancel()
			}
			return nil
		case update = <-ch:
			m.setLastUpdate(update)
			m.schedulePrune(ctx)
		case cfg := <-m.reload:
			if cfg.Debounce == 0 {
				cfg.Debounce = defaultDebounce
			}
			m.cfg = cfg
			m.rebuild(ctx, m.latestUpdate())
		}
	}
}

// Reload replaces the configuration, rebuilding the schedule and triggers.
func (m *Manager) Reload(cfg Configuration) {
	select {
	case <-m.reload:
	default:
	}
	m.reload <- cfg
}

// Schedule returns the active weekly schedule.
func (m *Manager) Schedule() schedule.WeeklySchedule {
	return m.weeklySchedule()
}

// Enabled reports whether auto-end is active.
func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

func (m *Manager) rebuild(ctx context.Context, update poller.Update) {
	m.cancelTriggers()
	m.setLastUpdate(update)
	m.enabled.Store(m.cfg.Enabled)

	s := m.deriveSchedule(update)
	m.scheduleLock.Lock()
	m.schedule = s
	m.scheduleLock.Unlock()

	if !m.cfg.Enabled {
		return
	}
	for _, at := range schedule.EndTimes(s).List() {
		m.cancels = append(m.cancels, m.scheduler.Schedule(at, func(at schedule.ClockTime) {
			m.onTrigger(ctx, at)
		}))
		m.logger.Debug("trigger registered", "at", at.String())
	}
	if last, ok := schedule.LastScheduledEnd(m.now(), s); ok {
		// a boundary may already have passed: at startup, or after a reload
		// that enabled auto-end or moved an end time earlier
		go m.endDue(ctx, &last)
	}
}

func (m *Manager) deriveSchedule(update poller.Update) schedule.WeeklySchedule {
	fallbackFrom, fallbackTo := schedule.DefaultFrom, schedule.DefaultTo
	if zone := update.Account.Zone; zone != nil {
		if !zone.StartTime.IsZero() {
			fallbackFrom = schedule.ClockOf(zone.StartTime.In(m.location))
		}
		if !zone.EndTime.IsZero() {
			fallbackTo = schedule.ClockOf(zone.EndTime.In(m.location))
		}
	}
	return schedule.Derive(m.cfg.Days, fallbackFrom, fallbackTo, schedule.DefaultWorkdays)
}

func (m *Manager) cancelTriggers() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = m.cancels[:0]
}

// onTrigger runs when a daily trigger fires. Today's day window and
// yesterday's overnight window are checked independently: an overnight
// window ends on the day after the one it's configured for.
func (m *Manager) onTrigger(ctx context.Context, at schedule.ClockTime) {
	now := m.now()
	clock := schedule.ClockOf(now)
	s := m.weeklySchedule()
	today := s[now.Weekday()]
	yesterday := s[(now.Weekday()+6)%7]

	due := (today.Enabled && !today.Overnight() && today.To == clock) ||
		(yesterday.Enabled && yesterday.Overnight() && yesterday.To == clock)
	if !due {
		m.logger.Debug("trigger fired outside schedule", "at", at.String())
		return
	}
	m.endDue(ctx, nil)
}

// endDue ends all owned, still-active reservations. With startedBefore set,
// only reservations started at or before that instant are ended (catch-up
// after a passed boundary). Only one pass runs at a time.
func (m *Manager) endDue(ctx context.Context, startedBefore *time.Time) {
	m.passLock.Lock()
	defer m.passLock.Unlock()

	live, err := m.client.FetchReservations(ctx)
	if err != nil {
		m.logger.Error("could not list reservations", "err", err)
		return
	}
	owned := m.tracker.Snapshot()
	if len(owned) == 0 {
		return
	}

	var candidates []provider.Reservation
	for _, reservation := range live {
		if reservation.ID == "" || !owned.Contains(reservation.ID) {
			continue
		}
		if startedBefore != nil && (reservation.StartTime.IsZero() || reservation.StartTime.After(*startedBefore)) {
			continue
		}
		candidates = append(candidates, reservation)
	}
	if len(candidates) == 0 {
		return
	}

	// validate the session before ending anything
	if err = m.client.Login(ctx); err != nil {
		m.logger.Error("login failed, not ending reservations", "err", err)
		return
	}

	results := make([]error, len(candidates))
	var wg sync.WaitGroup
	wg.Add(len(candidates))
	for i, reservation := range candidates {
		go func(i int, id string) {
			defer wg.Done()
			results[i] = m.client.DeleteReservation(ctx, id)
		}(i, reservation.ID)
	}
	wg.Wait()

	ended := make([]string, 0, len(candidates))
	for i, reservation := range candidates {
		if results[i] != nil {
			m.logger.Error("failed to end reservation",
				"id", reservation.ID,
				"plate", reservation.LicensePlate,
				"err", results[i],
			)
			continue
		}
		m.logger.Info("ended reservation", "id", reservation.ID, "plate", reservation.LicensePlate)
		ended = append(ended, reservation.ID)
	}
	if len(ended) == 0 {
		return
	}
	if err = m.tracker.Discard(ended...); err != nil {
		m.logger.Error("failed to save reservation store", "err", err)
	}
	m.poller.Refresh()
	m.notifier.Notify(fmt.Sprintf("ended %d visitor parking reservation(s)", len(ended)))
}

type pruneJob struct {
	cancel context.CancelFunc
}

// schedulePrune drops ownership of reservations that no longer exist
// upstream, debounced so a burst of updates causes one store write. A new
// update while a prune is pending does not schedule another job; the pending
// job reads the latest update when it fires.
func (m *Manager) schedulePrune(ctx context.Context) {
	if m.pruneJob.Load() != nil {
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	j := &pruneJob{cancel: cancel}
	if !m.pruneJob.CompareAndSwap(nil, j) {
		cancel()
		return
	}
	debounce := m.cfg.Debounce
	go func() {
		defer m.pruneJob.CompareAndSwap(j, nil)
		defer cancel()
		select {
		case <-subCtx.Done():
			return
		case <-time.After(debounce):
		}
		if err := m.tracker.Retain(m.latestUpdate().ReservationIDs()); err != nil {
			m.logger.Error("failed to prune reservation store", "err", err)
		}
	}()
}

func (m *Manager) setLastUpdate(update poller.Update) {
	m.updateLock.Lock()
	defer m.updateLock.Unlock()
	m.lastUpdate = update
}

func (m *Manager) latestUpdate() poller.Update {
	m.updateLock.Lock()
	defer m.updateLock.Unlock()
	return m.lastUpdate
}

func (m *Manager) weeklySchedule() schedule.WeeklySchedule {
	m.scheduleLock.RLock()
	defer m.scheduleLock.RUnlock()
	return m.schedule
}

func (m *Manager) now() time.Time {
	if m.GetCurrentTime != nil {
		return m.GetCurrentTime().In(m.location)
	}
	return time.Now().In(m.location)
}
