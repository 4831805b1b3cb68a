package dto

// ResolveAlertRequest closes an alert
type ResolveAlertRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

// EscalateAlertRequest attaches an escalation tier to an alert
type EscalateAlertRequest struct {
	Level int `json:"level" validate:"required,gte=1,lte=3"`
}

// AlertListRequest holds the alert list query parameters
type AlertListRequest struct {
	Type     string `json:"alert_type,omitempty" validate:"omitempty,oneof=threshold_breach service_threshold_breach anomaly_detection budget_exceeded budget_warning"`
	Severity string `json:"severity,omitempty" validate:"omitempty,oneof=info warning critical"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=active acknowledged resolved"`
	Service  string `json:"service,omitempty"`
	Region   string `json:"region,omitempty"`
	Since    string `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
