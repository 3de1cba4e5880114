package models

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the closed set of outcomes an evaluation can produce.
// Entries prefixed MANUAL_OVERRIDE_ and EMERGENCY_STOP are written by
// human control actions, never by the engine itself.
type Decision string

const (
	DecisionAllowExecution   Decision = "ALLOW_EXECUTION"
	DecisionBlockCooldown    Decision = "BLOCK_COOLDOWN"
	DecisionBlockPerformance Decision = "BLOCK_PERFORMANCE"
	DecisionBlockKillswitch  Decision = "BLOCK_KILLSWITCH"
	DecisionBlockStatus      Decision = "BLOCK_STATUS"
	DecisionPauseCampaign    Decision = "PAUSE_CAMPAIGN"
	DecisionEmergencyStop    Decision = "EMERGENCY_STOP"
)

// ManualOverrideDecision returns the audit decision code for a human
// override action, e.g. MANUAL_OVERRIDE_FORCE_PAUSE.
func ManualOverrideDecision(action string) Decision {
	return Decision("MANUAL_OVERRIDE_" + action)
}

// Blocking reports whether d prevents execution.
func (d Decision) Blocking() bool {
	return d != DecisionAllowExecution
}

// DecisionLogEntry is one append-only audit record of an autonomy
// decision. Rows are never mutated or deleted.
type DecisionLogEntry struct {
	ID           uuid.UUID `json:"id"`
	AutomationID uuid.UUID `json:"automation_id"`
	Decision     Decision  `json:"decision"`
	Reason       string    `json:"reason"`

	// MetricsSnapshot holds whatever metrics informed the decision.
	// Opaque to readers; present only when metrics were consulted.
	MetricsSnapshot JSONBMap `json:"metrics_snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
