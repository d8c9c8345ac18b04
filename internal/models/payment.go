package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether no further transition is allowed except completed -> refunded.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}

type Payment struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	PaymentMethod string          `gorm:"type:varchar(50)" json:"payment_method"`
	Reference     string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference"` // Gateway payment reference
	Status        PaymentStatus   `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`
	RankBefore    *int            `json:"rank_before"`
	RankAfter     *int            `json:"rank_after"`
	SettledAt     *time.Time      `gorm:"index" json:"settled_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	FailureReason string          `gorm:"type:text" json:"failure_reason,omitempty"`
	Metadata      datatypes.JSON  `json:"metadata,omitempty"`
}

// PaymentStats aggregates completed payments.
type PaymentStats struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}
