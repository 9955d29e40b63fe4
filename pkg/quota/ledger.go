// Package quota tracks daily YouTube API unit spend for one credential.
//
// The upstream API bills an abstract "unit" currency per call: list-family
// endpoints cost 1 unit per call regardless of how many IDs it carries,
// search-family endpoints cost a flat 100 units. The ledger is the single
// source of truth for "can we spend N more units today".
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vidpulse/vidpulse/pkg/alerts"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/storage"
)

const (
	// SearchCost is the flat unit price of one search-family call. It is
	// charged regardless of the units argument passed to Record, because
	// the upstream bills search calls at a fixed price.
	SearchCost = 100

	// coalesceWindow merges rapid-fire events with the same category and
	// note into one log entry so batched calls don't explode the log.
	coalesceWindow = 2 * time.Second
)

// ErrBudgetSpent is returned when a spend is gated off because the local
// budget estimate or the upstream sticky flag says the credential is done
// for the day.
var ErrBudgetSpent = errors.New("quota: daily budget spent")

// Ledger tracks daily unit spend for a single API credential. All
// read-modify-write cycles run under one mutex, so concurrent pipelines
// sharing a credential cannot interleave a read-before-increment.
type Ledger struct {
	store      storage.Store
	credential string
	budget     int
	warnPct    float64
	notifiers  []alerts.Notifier
	logger     *slog.Logger

	now func() time.Time

	mu        sync.Mutex
	observers []func(model.UsageRecord)
	lastLevel alerts.AlertLevel
}

// NewLedger creates a ledger persisting under the given credential key.
// One ledger per credential; construct at startup and inject.
func NewLedger(store storage.Store, credential string, budget int, notifiers []alerts.Notifier, logger *slog.Logger) *Ledger {
	if budget <= 0 {
		budget = 10000
	}
	return &Ledger{
		store:      store,
		credential: credential,
		budget:     budget,
		warnPct:    80,
		notifiers:  notifiers,
		logger:     logger,
		now:        time.Now,
	}
}

func (l *Ledger) storageKey() string {
	return "quota:usage:" + l.credential
}

// State loads the persisted usage record. A missing, unparsable, or
// stale (previous calendar day) blob is never fatal: the ledger resets to
// a fresh record and persists it.
func (l *Ledger) State(ctx context.Context) (model.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

func (l *Ledger) loadLocked(ctx context.Context) (model.UsageRecord, error) {
	now := l.now()

	blob, err := l.store.Get(ctx, l.storageKey())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return model.UsageRecord{}, fmt.Errorf("load usage record: %w", err)
	}

	if err == nil {
		var rec model.UsageRecord
		if jsonErr := json.Unmarshal(blob, &rec); jsonErr == nil && model.SameLocalDay(rec.ResetAt, now) {
			if rec.ByCategory == nil {
				rec.ByCategory = make(map[string]int)
			}
			rec.TotalBudget = l.budget
			return rec, nil
		}
		// Unparsable or from a previous calendar day: fall through to reset.
	}

	rec := l.freshRecord(now)
	if err := l.persistLocked(ctx, rec); err != nil {
		return model.UsageRecord{}, err
	}
	l.lastLevel = ""
	l.logger.Info("quota ledger reset", "credential", l.credential, "budget", l.budget)
	return rec, nil
}

// Reset discards the persisted record and starts a fresh budget period.
// This also clears a sticky upstream-exceeded flag, so it should only be
// used when the operator knows the upstream quota actually reset.
func (l *Ledger) Reset(ctx context.Context) (model.UsageRecord, error) {
	l.mu.Lock()
	rec := l.freshRecord(l.now())
	if err := l.persistLocked(ctx, rec); err != nil {
		l.mu.Unlock()
		return model.UsageRecord{}, err
	}
	l.lastLevel = ""
	l.mu.Unlock()

	l.logger.Info("quota ledger reset by operator", "credential", l.credential)
	l.notify(rec)
	return rec, nil
}

func (l *Ledger) freshRecord(now time.Time) model.UsageRecord {
	return model.UsageRecord{
		TotalBudget: l.budget,
		Used:        0,
		ResetAt:     now,
		ByCategory:  make(map[string]int),
		Events: []model.UsageEvent{{
			ID:        uuid.New().String(),
			Category:  model.CategoryList,
			Units:     0,
			Note:      "system reset",
			Timestamp: now,
		}},
	}
}

func (l *Ledger) persistLocked(ctx context.Context, rec model.UsageRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	if err := l.store.Put(ctx, l.storageKey(), blob); err != nil {
		return fmt.Errorf("persist usage record: %w", err)
	}
	return nil
}

// Record bills units against the budget and appends an event to the log.
// Search calls are billed at the flat SearchCost regardless of the passed
// unit count; list calls are billed at the caller-supplied count. If the
// most recent event has the same category and note and is younger than the
// coalescing window, its cost is merged into that event instead of
// creating a new entry.
func (l *Ledger) Record(ctx context.Context, category model.UsageCategory, units int, note string) (model.UsageRecord, error) {
	l.mu.Lock()

	rec, err := l.loadLocked(ctx)
	if err != nil {
		l.mu.Unlock()
		return model.UsageRecord{}, err
	}

	cost := units
	if category == model.CategorySearch {
		cost = SearchCost
	}

	now := l.now()
	rec.Used += cost
	rec.ByCategory[string(category)] += cost

	if len(rec.Events) > 0 {
		head := &rec.Events[0]
		if head.Category == category && head.Note == note && now.Sub(head.Timestamp) < coalesceWindow {
			head.Units += cost
			head.Timestamp = now
		} else {
			rec.Events = append([]model.UsageEvent{newEvent(category, cost, note, now)}, rec.Events...)
		}
	} else {
		rec.Events = []model.UsageEvent{newEvent(category, cost, note, now)}
	}

	if err := l.persistLocked(ctx, rec); err != nil {
		l.mu.Unlock()
		return model.UsageRecord{}, err
	}
	level, escalated := l.escalationLocked(rec)
	l.mu.Unlock()

	l.logger.Debug("quota spend recorded",
		"category", category,
		"units", cost,
		"note", note,
		"used", rec.Used,
		"budget", rec.TotalBudget,
	)

	l.notify(rec)
	if escalated {
		l.dispatchAlert(ctx, rec, level)
	}
	return rec, nil
}

func newEvent(category model.UsageCategory, units int, note string, ts time.Time) model.UsageEvent {
	return model.UsageEvent{
		ID:        uuid.New().String(),
		Category:  category,
		Units:     units,
		Note:      note,
		Timestamp: ts,
	}
}

// Available reports whether units more can be spent: the sticky exceeded
// flag is clear and the local estimate leaves room.
func (l *Ledger) Available(ctx context.Context, units int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	return !rec.Exceeded && rec.Remaining() >= units, nil
}

// Exceeded reports the sticky upstream-confirmed exceeded flag. It is
// distinct from the local counter because the local estimate and the
// upstream real counter can diverge (multiple clients, estimation error).
func (l *Ledger) Exceeded(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	return rec.Exceeded, nil
}

// MarkExceeded sets the sticky exceeded flag after the upstream API itself
// reported quotaExceeded. The flag clears at the next day rollover.
func (l *Ledger) MarkExceeded(ctx context.Context) error {
	l.mu.Lock()

	rec, err := l.loadLocked(ctx)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if rec.Exceeded {
		l.mu.Unlock()
		return nil
	}
	rec.Exceeded = true
	if err := l.persistLocked(ctx, rec); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	l.logger.Warn("upstream reported quota exceeded", "credential", l.credential, "used", rec.Used)
	l.notify(rec)
	l.dispatchAlert(ctx, rec, alerts.AlertExceeded)
	return nil
}

// Subscribe registers an observer invoked after every ledger mutation with
// a copy of the new record. Observers run outside the ledger lock and may
// call back into the ledger.
func (l *Ledger) Subscribe(fn func(model.UsageRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// notify dispatches rec to a snapshot of the observer list. Callers must
// not hold l.mu.
func (l *Ledger) notify(rec model.UsageRecord) {
	l.mu.Lock()
	obs := make([]func(model.UsageRecord), len(l.observers))
	copy(obs, l.observers)
	l.mu.Unlock()

	for _, fn := range obs {
		fn(rec)
	}
}

// escalationLocked reports whether usage crossed into a new severity level.
// Repeated spends at the same level stay quiet.
func (l *Ledger) escalationLocked(rec model.UsageRecord) (alerts.AlertLevel, bool) {
	if rec.TotalBudget <= 0 {
		return "", false
	}
	pct := float64(rec.Used) / float64(rec.TotalBudget) * 100

	var level alerts.AlertLevel
	switch {
	case pct >= 100:
		level = alerts.AlertExceeded
	case pct >= 95:
		level = alerts.AlertCritical
	case pct >= l.warnPct:
		level = alerts.AlertWarning
	default:
		return "", false
	}

	if level == l.lastLevel {
		return "", false
	}
	l.lastLevel = level
	return level, true
}

func (l *Ledger) dispatchAlert(ctx context.Context, rec model.UsageRecord, level alerts.AlertLevel) {
	if len(l.notifiers) == 0 {
		return
	}

	alert := alerts.Alert{
		Level:        level,
		Credential:   l.credential,
		UsedUnits:    rec.Used,
		BudgetUnits:  rec.TotalBudget,
		ThresholdPct: l.warnPct,
		Message: fmt.Sprintf("Credential %q at %d/%d units",
			l.credential, rec.Used, rec.TotalBudget),
	}

	l.logger.Warn("quota threshold crossed",
		"credential", l.credential,
		"level", level,
		"used", rec.Used,
		"budget", rec.TotalBudget,
	)

	for _, notifier := range l.notifiers {
		if err := notifier.Send(ctx, alert); err != nil {
			l.logger.Error("send alert failed",
				"notifier", notifier.Name(),
				"error", err,
			)
		}
	}
}
