package models

// SuccessEnvelope is the uniform body of every successful benchmark response.
// Count and Values are omitted by operations that have nothing to report.
type SuccessEnvelope struct {
	Message          string  `json:"message"`
	TotalQueryTimeMs float64 `json:"totalQueryTimeMs"`
	Count            *int64  `json:"count,omitempty"`
	Values           any     `json:"values,omitempty"`
	RunID            string  `json:"runId,omitempty"`
}

type AggregateEnvelope struct {
	TotalQueryTimeMs float64            `json:"totalQueryTimeMs"`
	Data             []CountryAggregate `json:"data"`
	RunID            string             `json:"runId,omitempty"`
}

type ErrorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

type HealthErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
