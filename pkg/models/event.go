package models

import "time"

// Event is the inbound transaction event submitted for evaluation.
// Fields hold the raw JSON-typed values exactly as received; casting to the
// configured semantic types happens inside the evaluation request.
type Event struct {
	ID        string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields"`
}

// NormalizedEvent is an Event after field-type casting. It exists only for the
// duration of one evaluation and is shared read-only between the production and
// shadow runs.
type NormalizedEvent struct {
	ID        string
	Timestamp time.Time
	Fields    map[string]interface{}
}
