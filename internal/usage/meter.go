// Package usage implements token budget metering: admission checks at
// session, daily, and monthly scopes, cost estimation from a pricing table,
// and an append-only usage audit log.
package usage

import (
	"fmt"
	"sync"
	"time"
)

// Scope identifies which budget a usage check applies to.
type Scope struct {
	kind       string
	sessionKey string
}

// SessionScope builds the Scope for one session's budget.
func SessionScope(sessionKey string) Scope { return Scope{kind: "session", sessionKey: sessionKey} }

// DailyScope is the shared daily budget across all sessions.
var DailyScope = Scope{kind: "daily"}

// MonthlyScope is the shared monthly budget across all sessions.
var MonthlyScope = Scope{kind: "monthly"}

// String renders the scope exactly as it appears in BudgetExceeded's error
// text: "session:<key>", "daily", or "monthly".
func (s Scope) String() string {
	if s.kind == "session" {
		return fmt.Sprintf("session:%s", s.sessionKey)
	}
	return s.kind
}

// BudgetExceeded reports that admitting a turn's estimated usage would push
// a scope over its configured limit.
type BudgetExceeded struct {
	Scope Scope
	Used  uint64
	Limit uint64
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("token budget exceeded (%s: %d/%d)", e.Scope, e.Used, e.Limit)
}

// Record is one append-only audit entry for a completed turn's usage.
type Record struct {
	Timestamp      time.Time
	SessionKey     string
	AgentID        string
	Provider       string
	Model          string
	InputTokens    uint64
	OutputTokens   uint64
	CostEstimateUSD float64
}

// pricePerMillion holds per-million-token USD pricing for one model family.
type pricePerMillion struct {
	in  float64
	out float64
}

// defaultPricing is used whenever a provider/model combination isn't in the
// table below; it approximates a mid-tier frontier model rather than
// under-counting cost for an unrecognized model.
var defaultPricing = pricePerMillion{in: 3.0, out: 15.0}

// getPricing looks up per-million-token pricing by provider and a substring
// match against model, checked most-specific-first (gpt-4o before gpt-4).
func getPricing(provider, model string) pricePerMillion {
	switch provider {
	case "anthropic":
		switch {
		case contains(model, "sonnet"):
			return pricePerMillion{3.0, 15.0}
		case contains(model, "haiku"):
			return pricePerMillion{0.25, 1.25}
		case contains(model, "opus"):
			return pricePerMillion{15.0, 75.0}
		}
	case "openai":
		switch {
		case contains(model, "gpt-4o"):
			return pricePerMillion{2.50, 10.0}
		case contains(model, "gpt-4"):
			return pricePerMillion{30.0, 60.0}
		case contains(model, "gpt-3.5"):
			return pricePerMillion{0.50, 1.50}
		}
	}
	return defaultPricing
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// EstimateCost computes the USD cost of a completion with the given input
// and output token counts under provider/model pricing.
func EstimateCost(provider, model string, inputTokens, outputTokens uint64) float64 {
	p := getPricing(provider, model)
	return (float64(inputTokens)/1_000_000)*p.in + (float64(outputTokens)/1_000_000)*p.out
}

// EstimateInputTokens approximates the input token count of a set of
// message bodies as total character count divided by four, plus one.
func EstimateInputTokens(bodies []string) uint64 {
	total := 0
	for _, b := range bodies {
		total += len(b)
	}
	return uint64(total/4) + 1
}

// Meter tracks token usage against session/daily/monthly limits. Admission
// (CheckBudget) and recording (RecordUsage) are separate, non-atomic steps,
// matching the source prototype: a caller must call both around a
// completion, and a burst of concurrent turns against the same scope can
// both pass CheckBudget before either calls RecordUsage.
type Meter struct {
	mu sync.Mutex

	sessionLimit uint64
	dailyLimit   uint64
	monthlyLimit uint64

	sessionUsage map[string]uint64
	dailyUsed    uint64
	dailyStart   time.Time
	monthlyUsed  uint64
	monthlyStart time.Time

	records []Record
	sink    AuditSink
}

// AuditSink optionally mirrors every recorded usage entry somewhere durable.
// A Meter never depends on the sink for its own admission decisions.
type AuditSink interface {
	Append(Record) error
}

// Limits configures the three budget scopes; a zero limit means "no limit
// configured" for that scope.
type Limits struct {
	Session uint64
	Daily   uint64
	Monthly uint64
}

// NewMeter builds a Meter with the given limits, starting its daily/monthly
// periods at the current UTC day/month.
func NewMeter(limits Limits) *Meter {
	now := time.Now().UTC()
	return &Meter{
		sessionLimit: limits.Session,
		dailyLimit:   limits.Daily,
		monthlyLimit: limits.Monthly,
		sessionUsage: make(map[string]uint64),
		dailyStart:   startOfDay(now),
		monthlyStart: startOfMonth(now),
	}
}

// SetAuditSink attaches an optional write-behind audit mirror.
func (m *Meter) SetAuditSink(sink AuditSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	y, mo, _ := t.Date()
	return time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC)
}

func (m *Meter) maybeResetPeriodsLocked() {
	now := time.Now().UTC()
	if d := startOfDay(now); d.After(m.dailyStart) {
		m.dailyUsed = 0
		m.dailyStart = d
	}
	if mo := startOfMonth(now); mo.After(m.monthlyStart) {
		m.monthlyUsed = 0
		m.monthlyStart = mo
	}
}

// CheckBudget returns BudgetExceeded if admitting estimatedTokens more usage
// for sessionKey would exceed any configured scope, checked session, then
// daily, then monthly.
func (m *Meter) CheckBudget(sessionKey string, estimatedTokens uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetPeriodsLocked()

	if m.sessionLimit > 0 {
		used := m.sessionUsage[sessionKey]
		if used+estimatedTokens > m.sessionLimit {
			return &BudgetExceeded{Scope: SessionScope(sessionKey), Used: used, Limit: m.sessionLimit}
		}
	}
	if m.dailyLimit > 0 && m.dailyUsed+estimatedTokens > m.dailyLimit {
		return &BudgetExceeded{Scope: DailyScope, Used: m.dailyUsed, Limit: m.dailyLimit}
	}
	if m.monthlyLimit > 0 && m.monthlyUsed+estimatedTokens > m.monthlyLimit {
		return &BudgetExceeded{Scope: MonthlyScope, Used: m.monthlyUsed, Limit: m.monthlyLimit}
	}
	return nil
}

// RecordUsage appends a usage record for a completed turn and updates every
// scope's running totals.
func (m *Meter) RecordUsage(sessionKey, agentID, provider, model string, inputTokens, outputTokens uint64) Record {
	total := inputTokens + outputTokens
	cost := EstimateCost(provider, model, inputTokens, outputTokens)

	m.mu.Lock()
	m.sessionUsage[sessionKey] += total
	m.maybeResetPeriodsLocked()
	m.dailyUsed += total
	m.monthlyUsed += total

	rec := Record{
		Timestamp:       time.Now(),
		SessionKey:      sessionKey,
		AgentID:         agentID,
		Provider:        provider,
		Model:           model,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		CostEstimateUSD: cost,
	}
	m.records = append(m.records, rec)
	sink := m.sink
	m.mu.Unlock()

	recordTokens(provider, model, inputTokens, outputTokens, cost)
	if sink != nil {
		_ = sink.Append(rec)
	}
	return rec
}

// GetUsage sums recorded usage for scope: the session's lifetime total, or
// everything recorded since the daily/monthly period started.
func (m *Meter) GetUsage(scope Scope) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetPeriodsLocked()

	switch scope.kind {
	case "session":
		return m.sessionUsage[scope.sessionKey]
	case "daily":
		return m.dailyUsed
	case "monthly":
		return m.monthlyUsed
	default:
		return 0
	}
}
