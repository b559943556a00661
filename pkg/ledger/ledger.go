// Package ledger implements the Cost Ledger (spec.md §4.D): an
// append-only per-owner spend accumulator with per-tier budget
// enforcement and warning/critical alert thresholds.
package ledger

import (
	"sync"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

const (
	warningThresholdRatio  = 0.80
	criticalThresholdRatio = 0.95
)

// Decision is what check() returns for a proposed call: whether the
// orchestrator may still issue it, and how close the owner is to its
// budget ceiling.
type Decision struct {
	Allow    bool
	Warning  bool
	Critical bool
	Spent    float64
	Budget   float64
}

// Ledger tracks process-wide and per-owner spend. Counters are updated
// atomically under the ledger's single mutex; the ledger never blocks on I/O
// (spec.md §5 Shared-resource policy: "Cost ledger counters are per-
// owner and updated atomically").
type Ledger struct {
	mu         sync.Mutex
	entries    []models.CostEntry
	ownerSpent map[string]float64
	// ownerReserved tracks estimated cost for calls Check has admitted
	// but that have not yet settled via Track (or been abandoned as a
	// free cache hit). It exists purely to close the gap between "Check
	// decided" and "Track recorded": a concurrent fan-out issuing
	// several calls at once must see each other's admitted-but-not-yet-
	// tracked cost, or all of them can pass the 95% gate against the
	// same stale ownerSpent (spec.md Invariant 5 / property 4).
	ownerReserved map[string]float64
	ownerCrit     map[string]bool
	ownerWarn     map[string]bool
	total         float64
	logger        logging.Logger
	onAlert       func(owner string, decision Decision)
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

// WithLogger attaches a structured logger for alert-threshold crossings.
func WithLogger(l logging.Logger) Option {
	return func(ldg *Ledger) { ldg.logger = l }
}

// WithAlertHook attaches a callback invoked whenever a warning or
// critical threshold is newly crossed for an owner.
func WithAlertHook(fn func(owner string, decision Decision)) Option {
	return func(ldg *Ledger) { ldg.onAlert = fn }
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		ownerSpent:    make(map[string]float64),
		ownerReserved: make(map[string]float64),
		ownerCrit:     make(map[string]bool),
		ownerWarn:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Track appends a CostEntry and, if owner is set, increments the
// owner's running spend. Per spec.md §4.D, failed calls still record
// cost: "paid even when the upstream errored".
func (l *Ledger) Track(provider string, cost float64, owner string, success bool) {
	entry := models.CostEntry{
		Provider:  provider,
		Amount:    cost,
		OwnerID:   owner,
		Kind:      "provider_call",
		Success:   success,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.total += cost
	if owner != "" {
		l.ownerSpent[owner] += cost
	}
	l.mu.Unlock()
}

// Check reports whether a call estimated to cost estimatedCost may
// still be issued against owner's budget, and whether the warning or
// critical threshold has been crossed. Once critical has been
// breached for an owner, Check denies that owner for the rest of this
// Ledger's lifetime; a Ledger has no reset operation, and cmd/carc
// builds one Ledger per process, shared by every job.
//
// Every admitted call reserves its estimatedCost against the owner
// atomically in the same critical section as the decision (see
// ownerReserved); callers MUST pair an Allow-true Check with exactly
// one later Release(owner, estimatedCost), whether or not the call
// they went on to make actually succeeded or even reached Track.
func (l *Ledger) Check(owner string, estimatedCost float64, budget models.BudgetConfig) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	committed := l.ownerSpent[owner] + l.ownerReserved[owner]
	ceiling := budget.MaxCostPerRequest
	if ceiling <= 0 {
		// A zero ceiling (free tier) means no paid calls at all; any
		// positive estimated cost is an automatic deny.
		if estimatedCost > 0 {
			return Decision{Allow: false, Spent: committed, Budget: ceiling}
		}
		return Decision{Allow: true, Spent: committed, Budget: ceiling}
	}

	projected := committed + estimatedCost
	ratio := projected / ceiling

	decision := Decision{Spent: committed, Budget: ceiling, Allow: true}
	switch {
	case ratio >= criticalThresholdRatio:
		// Critical breached: deny this and every subsequent call for
		// this owner (spec.md §4.D "once critical is breached, check
		// returns deny"), but the orchestrator must still return
		// whatever was already gathered, not fail the job.
		decision.Allow = false
		decision.Critical = true
	case ratio >= warningThresholdRatio:
		decision.Warning = true
	}

	// Warning and critical are gated independently: an owner that
	// already crossed 80% must still get its own alert the moment it
	// crosses 95%, so ownerWarn firing once must never suppress a later
	// ownerCrit alert (spec.md §4.D wants both thresholds reported).
	newWarning := decision.Warning && !l.ownerWarn[owner]
	newCritical := decision.Critical && !l.ownerCrit[owner]
	if decision.Warning {
		l.ownerWarn[owner] = true
	}
	if decision.Critical {
		l.ownerCrit[owner] = true
	}
	if l.ownerCrit[owner] {
		decision.Allow = false
		decision.Critical = true
	}

	if newWarning || newCritical {
		if l.logger != nil {
			l.logger.WithFields(logging.Fields{
				"owner": owner, "spent": committed, "budget": ceiling, "critical": decision.Critical,
			}).Warn("cost ledger threshold crossed")
		}
		if l.onAlert != nil {
			l.onAlert(owner, decision)
		}
	}

	if decision.Allow {
		l.ownerReserved[owner] += estimatedCost
	}

	return decision
}

// Release clears a reservation a prior Check made for estimatedCost
// once the call it gated has resolved, by whatever path: a successful
// or failed Track settles the real cost into ownerSpent independently,
// and a free cache hit settles nothing at all — either way the
// in-flight reservation must be cleared or headroom leaks away for
// the rest of the job. Safe to call with an amount never reserved;
// the reserved total is floored at zero.
func (l *Ledger) Release(owner string, estimatedCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ownerReserved[owner] -= estimatedCost
	if l.ownerReserved[owner] < 0 {
		l.ownerReserved[owner] = 0
	}
}

// OwnerSpent returns the total recorded spend for one owner.
func (l *Ledger) OwnerSpent(owner string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ownerSpent[owner]
}

// Total returns the process-wide spend total across all owners.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Entries returns a snapshot copy of every recorded CostEntry.
func (l *Ledger) Entries() []models.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.CostEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
