package models

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// BenchmarkRun is the persisted record of one timed operation.
type BenchmarkRun struct {
	BaseUUIDModel
	Backend          string  `gorm:"type:varchar(32);not null;index" json:"backend"`
	Operation        string  `gorm:"type:varchar(32);not null;index" json:"operation"`
	Status           string  `gorm:"type:varchar(20);not null"       json:"status"` // 'completed' or 'failed'
	Records          int64   `gorm:"not null"                        json:"records"`
	Chunks           int     `gorm:"not null"                        json:"chunks"`
	TotalQueryTimeMs float64 `gorm:"not null"                        json:"totalQueryTimeMs"`
	ErrorKind        *string `gorm:"type:varchar(32)"                json:"errorKind,omitempty"`
	ErrorMessage     *string `gorm:"type:text"                       json:"errorMessage,omitempty"`
	Parameters       *string `gorm:"type:text"                       json:"parameters,omitempty"` // JSON of the request
}

// RunSummary aggregates completed runs of one backend and operation.
type RunSummary struct {
	Backend        string  `gorm:"column:backend"             json:"backend"`
	Operation      string  `gorm:"column:operation"           json:"operation"`
	Runs           int64   `gorm:"column:runs"                json:"runs"`
	AvgQueryTimeMs float64 `gorm:"column:avg_query_time_ms"   json:"avgQueryTimeMs"`
	MinQueryTimeMs float64 `gorm:"column:min_query_time_ms"   json:"minQueryTimeMs"`
	MaxQueryTimeMs float64 `gorm:"column:max_query_time_ms"   json:"maxQueryTimeMs"`
	AvgRecords     float64 `gorm:"column:avg_records"         json:"avgRecords"`
}
