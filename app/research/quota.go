package research

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/research-comb/app/database"
)

// Unlimited marks a limit that is never reached.
const Unlimited = -1

const (
	TierFree         = "free"
	TierStarter      = "starter"
	TierPro          = "pro"
	TierProfessional = "professional"
	TierAdvanced     = "advanced"
	TierEnterprise   = "enterprise"
)

type Limits struct {
	MonthlySearches int `json:"monthly_searches"`
	DeepSearches    int `json:"deep_searches"`
	Monitors        int `json:"monitors"`
}

type Usage struct {
	Searches     int `json:"searches"`
	DeepSearches int `json:"deep_searches"`
	Monitors     int `json:"monitors"`
}

var tierLimits = map[string]Limits{
	TierFree:         {MonthlySearches: 0, DeepSearches: 0, Monitors: 0},
	TierStarter:      {MonthlySearches: 50, DeepSearches: 10, Monitors: 1},
	TierPro:          {MonthlySearches: 500, DeepSearches: 100, Monitors: 10},
	TierProfessional: {MonthlySearches: 500, DeepSearches: 100, Monitors: 10},
	TierAdvanced:     {MonthlySearches: 2000, DeepSearches: 500, Monitors: 50},
	TierEnterprise:   {MonthlySearches: Unlimited, DeepSearches: Unlimited, Monitors: Unlimited},
}

var ErrQuotaExceeded = errors.New("quota exceeded")

// QuotaError is returned when a user may not run a search or add a monitor.
type QuotaError struct {
	Reason string
	Usage  *Usage
	Limits Limits
}

func (e *QuotaError) Error() string {
	return e.Reason
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// NormalizeTier maps a subscription tier name to a known tier. Unknown and
// empty names are treated as free.
func NormalizeTier(tier string) string {
	normalized := strings.ToLower(strings.TrimSpace(tier))
	if _, ok := tierLimits[normalized]; ok {
		return normalized
	}
	return TierFree
}

func LimitsFor(tier string) Limits {
	return tierLimits[NormalizeTier(tier)]
}

type Quota struct {
	queries  database.QueryRepository
	monitors database.MonitorRepository
	now      func() time.Time
}

func NewQuota(queries database.QueryRepository, monitors database.MonitorRepository) *Quota {
	return &Quota{
		queries:  queries,
		monitors: monitors,
		now:      time.Now,
	}
}

// CheckSearchQuota returns nil when userID may run a search in the given mode
// this month, a *QuotaError when a limit is reached, or a storage error.
func (q *Quota) CheckSearchQuota(userID, tier, mode string) error {
	tier = NormalizeTier(tier)
	limits := tierLimits[tier]

	if tier == TierFree {
		return &QuotaError{
			Reason: "Web Search requires a paid subscription (Starter or higher)",
			Limits: limits,
		}
	}

	usage, err := q.usage(userID)
	if err != nil {
		return err
	}

	if isDeepMode(mode) && limitReached(usage.DeepSearches, limits.DeepSearches) {
		return &QuotaError{
			Reason: fmt.Sprintf("Monthly deep search limit reached (%d deep searches)", limits.DeepSearches),
			Usage:  usage,
			Limits: limits,
		}
	}

	if limitReached(usage.Searches, limits.MonthlySearches) {
		return &QuotaError{
			Reason: fmt.Sprintf("Monthly search limit reached (%d searches)", limits.MonthlySearches),
			Usage:  usage,
			Limits: limits,
		}
	}

	return nil
}

// CheckMonitorQuota returns nil when userID may keep one more active monitor
// besides excludeName.
func (q *Quota) CheckMonitorQuota(userID, tier, excludeName string) error {
	tier = NormalizeTier(tier)
	limits := tierLimits[tier]

	if tier == TierFree {
		return &QuotaError{
			Reason: "Search monitors require a paid subscription (Starter or higher)",
			Limits: limits,
		}
	}

	count, err := q.monitors.CountActiveMonitors(userID, excludeName)
	if err != nil {
		return fmt.Errorf("failed to count monitors: %w", err)
	}

	if limitReached(count, limits.Monitors) {
		return &QuotaError{
			Reason: fmt.Sprintf("Monitor limit reached (%d active monitors)", limits.Monitors),
			Usage:  &Usage{Monitors: count},
			Limits: limits,
		}
	}

	return nil
}

type UsageStats struct {
	Tier      string `json:"tier"`
	Usage     Usage  `json:"usage"`
	Limits    Limits `json:"limits"`
	Remaining Limits `json:"remaining"`
}

func (q *Quota) UsageStats(userID, tier string) (*UsageStats, error) {
	tier = NormalizeTier(tier)
	limits := tierLimits[tier]

	usage, err := q.usage(userID)
	if err != nil {
		return nil, err
	}

	return &UsageStats{
		Tier:   tier,
		Usage:  *usage,
		Limits: limits,
		Remaining: Limits{
			MonthlySearches: remaining(limits.MonthlySearches, usage.Searches),
			DeepSearches:    remaining(limits.DeepSearches, usage.DeepSearches),
			Monitors:        remaining(limits.Monitors, usage.Monitors),
		},
	}, nil
}

func (q *Quota) usage(userID string) (*Usage, error) {
	monthStart := startOfMonth(q.now())

	searches, err := q.queries.CountQueriesSince(userID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count searches: %w", err)
	}

	deep, err := q.queries.CountQueriesSince(userID, monthStart, ModeDeep, ModeTargeted)
	if err != nil {
		return nil, fmt.Errorf("failed to count deep searches: %w", err)
	}

	monitors, err := q.monitors.CountActiveMonitors(userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count monitors: %w", err)
	}

	return &Usage{Searches: searches, DeepSearches: deep, Monitors: monitors}, nil
}

// startOfMonth is midnight on the first day of now's month, in now's location.
func startOfMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
}

func isDeepMode(mode string) bool {
	return mode == ModeDeep || mode == ModeTargeted
}

func limitReached(count, limit int) bool {
	return limit != Unlimited && count >= limit
}

func remaining(limit, used int) int {
	if limit == Unlimited {
		return Unlimited
	}
	return max(0, limit-used)
}
