package events

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
	// ToMap renders the payload for the wire-facing Event.Data field
	ToMap() map[string]interface{}
}

// SyncStartedData contains data for SyncStarted events
type SyncStartedData struct {
	TenantID  string `json:"tenant_id"`
	Operation string `json:"operation"`
}

// EventType returns the event type for SyncStartedData
func (d *SyncStartedData) EventType() EventType {
	return SyncStarted
}

// ToMap renders the payload as a generic map
func (d *SyncStartedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": d.TenantID,
		"operation": d.Operation,
	}
}

// SyncCompletedData contains data for SyncCompleted events
type SyncCompletedData struct {
	TenantID   string `json:"tenant_id"`
	Operation  string `json:"operation"`
	Processed  int    `json:"processed"`
	DurationMS int64  `json:"duration_ms"`
}

// EventType returns the event type for SyncCompletedData
func (d *SyncCompletedData) EventType() EventType {
	return SyncCompleted
}

// ToMap renders the payload as a generic map
func (d *SyncCompletedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   d.TenantID,
		"operation":   d.Operation,
		"processed":   d.Processed,
		"duration_ms": d.DurationMS,
	}
}

// SyncFailedData contains data for SyncFailed events.
// Reason carries the error classification, never upstream response bodies.
type SyncFailedData struct {
	TenantID  string `json:"tenant_id"`
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

// EventType returns the event type for SyncFailedData
func (d *SyncFailedData) EventType() EventType {
	return SyncFailed
}

// ToMap renders the payload as a generic map
func (d *SyncFailedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": d.TenantID,
		"operation": d.Operation,
		"reason":    d.Reason,
	}
}

// AnalysisStartedData contains data for AnalysisStarted events
type AnalysisStartedData struct {
	TenantID   string `json:"tenant_id"`
	AnalysisID string `json:"analysis_id"`
}

// EventType returns the event type for AnalysisStartedData
func (d *AnalysisStartedData) EventType() EventType {
	return AnalysisStarted
}

// ToMap renders the payload as a generic map
func (d *AnalysisStartedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   d.TenantID,
		"analysis_id": d.AnalysisID,
	}
}

// AnalysisCompletedData contains data for AnalysisCompleted events
type AnalysisCompletedData struct {
	TenantID        string `json:"tenant_id"`
	AnalysisID      string `json:"analysis_id"`
	TotalUsers      int    `json:"total_users"`
	Recommendations int    `json:"recommendations"`
	SavingsMonthly  string `json:"savings_monthly"`
}

// EventType returns the event type for AnalysisCompletedData
func (d *AnalysisCompletedData) EventType() EventType {
	return AnalysisCompleted
}

// ToMap renders the payload as a generic map
func (d *AnalysisCompletedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":       d.TenantID,
		"analysis_id":     d.AnalysisID,
		"total_users":     d.TotalUsers,
		"recommendations": d.Recommendations,
		"savings_monthly": d.SavingsMonthly,
	}
}

// AnalysisFailedData contains data for AnalysisFailed events
type AnalysisFailedData struct {
	TenantID   string `json:"tenant_id"`
	AnalysisID string `json:"analysis_id"`
	Reason     string `json:"reason"`
}

// EventType returns the event type for AnalysisFailedData
func (d *AnalysisFailedData) EventType() EventType {
	return AnalysisFailed
}

// ToMap renders the payload as a generic map
func (d *AnalysisFailedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   d.TenantID,
		"analysis_id": d.AnalysisID,
		"reason":      d.Reason,
	}
}

// RecommendationAppliedData contains data for RecommendationApplied events
type RecommendationAppliedData struct {
	RecommendationID string `json:"recommendation_id"`
	TenantID         string `json:"tenant_id"`
	Action           string `json:"action"`
	Status           string `json:"status"`
}

// EventType returns the event type for RecommendationAppliedData
func (d *RecommendationAppliedData) EventType() EventType {
	return RecommendationApplied
}

// ToMap renders the payload as a generic map
func (d *RecommendationAppliedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"recommendation_id": d.RecommendationID,
		"tenant_id":         d.TenantID,
		"action":            d.Action,
		"status":            d.Status,
	}
}

// PricesRefreshedData contains data for PricesRefreshed events
type PricesRefreshedData struct {
	Products int    `json:"products"`
	Prices   int    `json:"prices"`
	Source   string `json:"source"` // "sync" or "csv"
}

// EventType returns the event type for PricesRefreshedData
func (d *PricesRefreshedData) EventType() EventType {
	return PricesRefreshed
}

// ToMap renders the payload as a generic map
func (d *PricesRefreshedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"products": d.Products,
		"prices":   d.Prices,
		"source":   d.Source,
	}
}

// TenantUpdatedData contains data for TenantUpdated events
type TenantUpdatedData struct {
	TenantID string `json:"tenant_id"`
	Change   string `json:"change"` // e.g. "created", "credentials", "credentials_invalidated"
}

// EventType returns the event type for TenantUpdatedData
func (d *TenantUpdatedData) EventType() EventType {
	return TenantUpdated
}

// ToMap renders the payload as a generic map
func (d *TenantUpdatedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": d.TenantID,
		"change":    d.Change,
	}
}
