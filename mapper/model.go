package mapper

import "time"

// Column names shared by every entity table.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnExpired   = "expired"
	ColumnNote      = "note"
)

// Model is the base record embedded by every entity. Expired is the
// soft-delete flag; rows with Expired set are invisible to loads and lists.
type Model struct {
	ID        int64      `msgpack:"id"`
	CreatedAt time.Time  `msgpack:"created_at"`
	UpdatedAt *time.Time `msgpack:"updated_at"`
	Expired   bool       `msgpack:"expired"`
	Note      string     `msgpack:"note"`
}

// IsNew reports whether the record has not been inserted yet.
func (m *Model) IsNew() bool { return m.ID == 0 }

// ModelColumns returns the accessor table for the embedded Model, in the
// canonical order id, created_at, updated_at, expired, note.
func ModelColumns[E any](model func(*E) *Model) []Column[E] {
	return []Column[E]{
		Col(ColumnID, "ID", func(e *E) *int64 { return &model(e).ID }),
		Col(ColumnCreatedAt, "CreatedAt", func(e *E) *time.Time { return &model(e).CreatedAt }),
		Col(ColumnUpdatedAt, "UpdatedAt", func(e *E) **time.Time { return &model(e).UpdatedAt }),
		Col(ColumnExpired, "Expired", func(e *E) *bool { return &model(e).Expired }).WithDefault(false),
		Col(ColumnNote, "Note", func(e *E) *string { return &model(e).Note }),
	}
}
