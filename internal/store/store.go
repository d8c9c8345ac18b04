// Package store persists users, payments, badges and ledger entries.
//
// GormStore backs production (postgres) and the file demo mode (sqlite); MemoryStore backs the
// in-process demo mode. Both satisfy Store and are run through the same contract tests.
package store

import (
	"context"
	"errors"
	"time"

	"payrank-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("duplicate record")
)

// WindowTotal is one user's sum of completed payments inside a window.
type WindowTotal struct {
	UserID uint
	Total  decimal.Decimal
}

// LedgerFilter defines criteria for filtering ledger entries
type LedgerFilter struct {
	UserID    *uint
	Type      *models.LedgerEntryType
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	Limit     int
}

// Reader groups the read-only queries. Rank-related queries are not locked and may
// observe a slightly stale snapshot.
type Reader interface {
	FindUser(ctx context.Context, id uint) (*models.User, error)
	FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CountUsersAbove(ctx context.Context, spend decimal.Decimal) (int64, error)
	ListUsersBySpend(ctx context.Context, offset, limit int) ([]models.User, error)
	// UsersAbove returns users with strictly greater spend, closest first.
	UsersAbove(ctx context.Context, spend decimal.Decimal, limit int) ([]models.User, error)
	// UsersBelow returns users with strictly lower spend, closest first.
	UsersBelow(ctx context.Context, spend decimal.Decimal, limit int) ([]models.User, error)
	// UsersBetween returns users with low < spend < high.
	UsersBetween(ctx context.Context, low, high decimal.Decimal) ([]models.User, error)

	WindowTotals(ctx context.Context, since time.Time, offset, limit int) ([]WindowTotal, error)
	CountWindowParticipants(ctx context.Context, since time.Time) (int64, error)
	UserWindowTotal(ctx context.Context, userID uint, since time.Time) (decimal.Decimal, error)
	CountWindowAbove(ctx context.Context, since time.Time, total decimal.Decimal) (int64, error)

	Badges(ctx context.Context, userIDs ...uint) (map[uint][]string, error)

	FindPayment(ctx context.Context, id uint) (*models.Payment, error)
	FindPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	PaymentsForUser(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, int64, error)
	// PaymentStats sums completed payments settled at or after since; a zero since means all time.
	PaymentStats(ctx context.Context, since time.Time) (models.PaymentStats, error)

	LedgerEntries(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, int64, error)
}

type Store interface {
	Reader

	CreateUser(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id uint, update models.ProfileUpdate) (*models.User, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error

	// Transaction runs fn atomically. Any error returned by fn rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side used inside a settlement or refund.
type Tx interface {
	LockUser(id uint) (*models.User, error)
	LockPayment(id uint) (*models.Payment, error)
	LockPaymentByReference(reference string) (*models.Payment, error)
	CountUsersAbove(spend decimal.Decimal) (int64, error)
	// UpdateSpend writes spend if user.Version is still current, returning ErrConflict otherwise.
	// On success user is updated in place.
	UpdateSpend(user *models.User, spend decimal.Decimal, at time.Time) error
	UpdateRank(userID uint, rank int) error
	SavePayment(payment *models.Payment) error
	Badges(userID uint) ([]string, error)
	PaymentBadges(paymentID uint) ([]string, error)
	AwardBadges(userID, paymentID uint, names []string, at time.Time) error
	AppendLedger(entry *models.LedgerEntry) error
	LedgerEntryFor(paymentID uint, entryType models.LedgerEntryType) (*models.LedgerEntry, error)
}
