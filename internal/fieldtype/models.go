package fieldtype

import "time"

// Kind is the semantic type an event field is cast to before any rule runs.
type Kind string

const (
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindString   Kind = "string"
	KindBoolean  Kind = "boolean"
	KindDatetime Kind = "datetime"
	// KindAsIs passes the raw JSON value through unchanged. Fields with no
	// configuration behave as if configured with KindAsIs.
	KindAsIs Kind = "as_is"
)

type FieldType struct {
	FieldName string    `json:"field_name"`
	Kind      Kind      `json:"field_type"`
	Format    string    `json:"format,omitempty"` // datetime layout, Go reference time
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultDatetimeFormat is used when a datetime field has no explicit layout.
const DefaultDatetimeFormat = time.RFC3339
