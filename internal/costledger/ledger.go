package costledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// RoleTotals is the per-role slice of one day's ledger bucket (spec §3).
type RoleTotals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUsd      float64 `json:"cost_usd"`
}

// DayBucket is one day's ledger entry, keyed by local date "YYYY-MM-DD".
type DayBucket struct {
	TotalUsd  float64               `json:"total_usd"`
	CallCount int64                 `json:"call_count"`
	PerRole   map[string]RoleTotals `json:"per_role"`
}

// RetentionDays is the number of most-recent days kept (spec §3).
const RetentionDays = 30

// BudgetStatus is the result of a budgetCheck() query (spec §4.6).
type BudgetStatus struct {
	OK      bool    `json:"ok"`
	Spend   float64 `json:"spend"`
	Limit   float64 `json:"limit"`
	Warning bool    `json:"warning"`
}

// Ledger is the single-writer, atomically-persisted daily cost ledger.
type Ledger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time

	days    map[string]*DayBucket
	pricing map[string]map[string]ModelPricing // overrides, by provider

	// OnRecord, when set, is called after each Record with the role and that
	// role's updated running total for today, for metrics wiring.
	OnRecord func(role string, todayTotalUsd float64)
}

// New constructs a Ledger backed by path, loading any existing state.
func New(path string, now func() time.Time) (*Ledger, error) {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{path: path, now: now, days: map[string]*DayBucket{}}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &l.days)
}

// Record adds one call's usage to today's bucket, tagged by the requesting
// role (spec §4.1: "tagged by the requesting role, not the fallback"), and
// persists atomically.
func (l *Ledger) Record(provider, modelName string, role model.Role, inputTokens, outputTokens, cachedTokens int64) (float64, error) {
	pricing := Resolve(provider, modelName, l.pricing)
	cost := EstimateUsd(inputTokens, outputTokens, cachedTokens, pricing)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.now().Format("2006-01-02")
	bucket, ok := l.days[key]
	if !ok {
		bucket = &DayBucket{PerRole: map[string]RoleTotals{}}
		l.days[key] = bucket
	}
	bucket.TotalUsd += cost
	bucket.CallCount++
	rt := bucket.PerRole[string(role)]
	rt.InputTokens += inputTokens
	rt.OutputTokens += outputTokens
	rt.CostUsd += cost
	bucket.PerRole[string(role)] = rt

	l.prune()
	err := l.persist()
	if l.OnRecord != nil {
		l.OnRecord(string(role), rt.CostUsd)
	}
	return cost, err
}

// prune evicts all but the RetentionDays most recent day keys, lexicographically.
func (l *Ledger) prune() {
	if len(l.days) <= RetentionDays {
		return
	}
	keys := make([]string, 0, len(l.days))
	for k := range l.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-RetentionDays] {
		delete(l.days, k)
	}
}

// Today returns a copy of today's bucket (zero value if no spend yet).
func (l *Ledger) Today() DayBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.now().Format("2006-01-02")
	if bucket, ok := l.days[key]; ok {
		return *bucket
	}
	return DayBucket{PerRole: map[string]RoleTotals{}}
}

// All returns every retained day's bucket keyed by date (spec §6 `GET
// /api/costs`: "cost-log.json — ledger (30-day rolling)").
func (l *Ledger) All() map[string]DayBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]DayBucket, len(l.days))
	for k, v := range l.days {
		out[k] = *v
	}
	return out
}

// BudgetCheck reports whether today's spend is within dailyLimit, and
// whether it has crossed warnThreshold (spec §4.6).
func (l *Ledger) BudgetCheck(dailyLimit, warnThreshold float64) BudgetStatus {
	spend := l.Today().TotalUsd
	return BudgetStatus{
		OK:      spend < dailyLimit,
		Spend:   spend,
		Limit:   dailyLimit,
		Warning: spend >= warnThreshold,
	}
}

// persist writes the ledger atomically (temp-file + rename).
func (l *Ledger) persist() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l.days, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
