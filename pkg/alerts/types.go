package alerts

import "context"

// AlertLevel indicates the severity of a quota alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"  // Approaching the daily unit budget
	AlertCritical AlertLevel = "critical" // At or near the daily unit budget
	AlertExceeded AlertLevel = "exceeded" // Budget spent or upstream reported quotaExceeded
)

// Alert represents a quota threshold notification for one API credential.
type Alert struct {
	Level        AlertLevel `json:"level"`
	Credential   string     `json:"credential"`
	UsedUnits    int        `json:"used_units"`
	BudgetUnits  int        `json:"budget_units"`
	ThresholdPct float64    `json:"threshold_pct"`
	Message      string     `json:"message"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
