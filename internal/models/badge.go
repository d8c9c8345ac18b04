package models

import "time"

// UserBadge is an append-only achievement row.
type UserBadge struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeName string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_user_badge" json:"badge_name"`
	PaymentID uint      `gorm:"index" json:"payment_id"` // Payment whose settlement earned it
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
}
