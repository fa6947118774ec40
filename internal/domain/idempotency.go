package domain

import "time"

// Idempotency records the outcome of a book creation that carried an
// Idempotency-Key header, so a retried request can be answered with the
// originally created book instead of a title conflict.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);not null;primaryKey"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_key"`
	BookID    uint64    `gorm:"not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
