package models

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerEntrySettlement LedgerEntryType = "settlement"
	LedgerEntryRefund     LedgerEntryType = "refund"
)

// LedgerEntry is the immutable audit row written next to every spend mutation.
type LedgerEntry struct {
	ID          uint            `gorm:"primarykey"`
	CreatedAt   time.Time       `gorm:"precision:3"` // Millisecond precision
	UserID      uint            `gorm:"index;not null"`
	PaymentID   uint            `gorm:"index;not null"`
	Type        LedgerEntryType `gorm:"type:varchar(20);index;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null"` // Signed; negative for refunds
	SpendBefore decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	SpendAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	RankBefore  int
	RankAfter   int
	Operator    string `gorm:"type:varchar(100)"` // Username, 'gateway' or 'system'
	Hash        string `gorm:"type:varchar(64);default:''"` // HMAC SHA256
}

// GenerateHash generates a tamper-proof hash for the entry
func (e *LedgerEntry) GenerateHash(secret string) string {
	data := fmt.Sprintf("%d|%d|%d|%s|%s|%s|%s|%d|%d|%s",
		e.UserID, e.PaymentID, e.CreatedAt.UnixMilli(), e.Type,
		e.Amount.StringFixed(2), e.SpendBefore.StringFixed(2), e.SpendAfter.StringFixed(2),
		e.RankBefore, e.RankAfter, e.Operator)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the stored hash matches the row content.
func (e *LedgerEntry) Verify(secret string) bool {
	return hmac.Equal([]byte(e.Hash), []byte(e.GenerateHash(secret)))
}
