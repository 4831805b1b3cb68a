package dto

// TriggerRunRequest starts one pass. report_type selects it the same way
// the scheduled trigger payload does; empty means a full analysis.
type TriggerRunRequest struct {
	ReportType string `json:"report_type,omitempty" validate:"omitempty,max=64"`
}
