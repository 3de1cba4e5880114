// Package models contains domain types for cadence-engine.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AutomationStatus is the operational on/off state of an automation.
type AutomationStatus string

const (
	AutomationStatusActive AutomationStatus = "active"
	AutomationStatusPaused AutomationStatus = "paused"
)

// Valid reports whether s is a known automation status.
func (s AutomationStatus) Valid() bool {
	switch s {
	case AutomationStatusActive, AutomationStatusPaused:
		return true
	}
	return false
}

// AutonomyStatus is the engine's own opinion about an automation,
// distinct from its operational status.
type AutonomyStatus string

const (
	AutonomyActive  AutonomyStatus = "autonomous_active"
	AutonomyPaused  AutonomyStatus = "autonomous_paused"
	AutonomyBlocked AutonomyStatus = "autonomous_blocked"
)

// Valid reports whether s is a known autonomy status.
func (s AutonomyStatus) Valid() bool {
	switch s {
	case AutonomyActive, AutonomyPaused, AutonomyBlocked:
		return true
	}
	return false
}

// TriggerType determines how an automation's next run is computed.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerInterval TriggerType = "interval"
	TriggerCron     TriggerType = "cron"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerInterval, TriggerCron:
		return true
	}
	return false
}

// Automation is the schedulable unit: one campaign's autonomous
// execution rule. The rules payload is opaque to the engine beyond the
// keys the policy reads.
type Automation struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`

	TriggerType   TriggerType `json:"trigger_type"`
	TriggerConfig JSONBMap    `json:"trigger_config,omitempty"`
	Rules         JSONBMap    `json:"rules,omitempty"`

	Status         AutomationStatus `json:"status"`
	AutonomyStatus AutonomyStatus   `json:"autonomy_status"`

	IsManuallyOverridden bool    `json:"is_manually_overridden"`
	OverrideReason       *string `json:"override_reason,omitempty"`
	StyleLocked          bool    `json:"style_locked"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastError *string    `json:"last_error,omitempty"`
	ErrorAt   *time.Time `json:"error_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IntervalMinutes reads the interval trigger period from the trigger
// config, defaulting to 60 when absent or malformed.
func (a *Automation) IntervalMinutes() int {
	if a.TriggerConfig == nil {
		return 60
	}
	if v, ok := a.TriggerConfig["minutes"]; ok {
		switch n := v.(type) {
		case float64:
			if n > 0 {
				return int(n)
			}
		case int:
			if n > 0 {
				return n
			}
		}
	}
	return 60
}

// CronExpression reads the cron trigger expression from the trigger
// config. Returns empty string when not configured.
func (a *Automation) CronExpression() string {
	if a.TriggerConfig == nil {
		return ""
	}
	if v, ok := a.TriggerConfig["cron"].(string); ok {
		return v
	}
	return ""
}

// JSONBMap is a map type that handles PostgreSQL JSONB serialization.
type JSONBMap map[string]interface{}

// Value implements driver.Valuer for database serialization.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database deserialization.
func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONBMap", value)
	}

	return json.Unmarshal(bytes, j)
}
