package entity

import "time"

// Audit holds the bookkeeping timestamps shared by every persisted entity.
// It is embedded, so bun flattens its columns into the owning table.
type Audit struct {
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Stamp initialises both timestamps for a new row.
func (a *Audit) Stamp(now time.Time) {
	a.CreatedAt = now
	a.UpdatedAt = now
}

// Touch refreshes the last-update timestamp.
func (a *Audit) Touch(now time.Time) {
	a.UpdatedAt = now
}
