package tasks

// 任务类型
const (
	TypeScheduledHunt   = "hunter:scheduled_hunt"
	TypeMonitoringCycle = "monitor:cycle"
	TypeEvaluatePending = "director:evaluate_pending"
)

// ScheduledHuntPayload 定时搜索任务载荷
type ScheduledHuntPayload struct {
	TriggeredBy string `json:"triggered_by"` // scheduler / manual
}

// MonitoringCyclePayload 巡检任务载荷
type MonitoringCyclePayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// EvaluatePendingPayload 批量评估任务载荷
type EvaluatePendingPayload struct {
	TriggeredBy string `json:"triggered_by"`
}
