package services

import "time"

// Autonomy policy thresholds. These are process-wide defaults; the
// cooldown can be overridden per automation through its rules payload.
const (
	// DefaultCooldownMinutes is the minimum time between two executions
	// of the same automation.
	DefaultCooldownMinutes = 60

	// MinCTRThreshold is the click-through-rate floor (percent) below
	// which a campaign is considered underperforming.
	MinCTRThreshold = 0.5

	// MinEngagementRate is the engagement-rate floor (percent) below
	// which a campaign is considered underperforming.
	MinEngagementRate = 0.1
)

// Metric keys the policy reads from a metrics snapshot.
const (
	MetricCTR            = "ctr"
	MetricEngagementRate = "engagement_rate"
)

// CooldownElapsed reports whether enough time has passed since the last
// run. A nil lastRun means the automation has never run and the
// cooldown is trivially satisfied. Non-positive cooldownMinutes falls
// back to the default.
func CooldownElapsed(lastRun *time.Time, cooldownMinutes int, now time.Time) bool {
	if lastRun == nil {
		return true
	}
	if cooldownMinutes <= 0 {
		cooldownMinutes = DefaultCooldownMinutes
	}
	return now.Sub(*lastRun) >= time.Duration(cooldownMinutes)*time.Minute
}

// ShouldPauseForPerformance reports whether a metrics snapshot is bad
// enough to pause a campaign. Both CTR and engagement rate must be
// below their floors; a single noisy signal never pauses. Snapshots
// missing either key cannot be judged and never pause.
func ShouldPauseForPerformance(metrics map[string]float64) bool {
	ctr, ok := metrics[MetricCTR]
	if !ok {
		return false
	}
	engagement, ok := metrics[MetricEngagementRate]
	if !ok {
		return false
	}
	return ctr < MinCTRThreshold && engagement < MinEngagementRate
}
