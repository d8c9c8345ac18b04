package store

import (
	"context"
	"errors"
	"time"

	"payrank-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// spendOrder is the display ordering for users, matching rank.Less.
const spendOrder = "cumulative_spend DESC, spend_reached_at ASC, id ASC"

// GormStore implements Store on a relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.UserBadge{},
		&models.LedgerEntry{},
	)
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *GormStore) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (s *GormStore) CountUsersAbove(ctx context.Context, spend decimal.Decimal) (int64, error) {
	return countUsersAbove(s.db.WithContext(ctx), spend)
}

func countUsersAbove(db *gorm.DB, spend decimal.Decimal) (int64, error) {
	var n int64
	err := db.Model(&models.User{}).Where("cumulative_spend > ?", spend).Count(&n).Error
	return n, err
}

func (s *GormStore) ListUsersBySpend(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order(spendOrder).Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

func (s *GormStore) UsersAbove(ctx context.Context, spend decimal.Decimal, limit int) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("cumulative_spend > ?", spend).
		Order("cumulative_spend ASC, spend_reached_at ASC, id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (s *GormStore) UsersBelow(ctx context.Context, spend decimal.Decimal, limit int) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("cumulative_spend < ?", spend).
		Order(spendOrder).
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (s *GormStore) UsersBetween(ctx context.Context, low, high decimal.Decimal) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("cumulative_spend > ? AND cumulative_spend < ?", low, high).
		Order(spendOrder).
		Find(&users).Error
	return users, err
}

func (s *GormStore) completedSince(ctx context.Context, since time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND settled_at >= ?", models.PaymentStatusCompleted, since.UTC())
}

func (s *GormStore) WindowTotals(ctx context.Context, since time.Time, offset, limit int) ([]WindowTotal, error) {
	var rows []WindowTotal
	err := s.completedSince(ctx, since).
		Select("user_id, SUM(amount) AS total").
		Group("user_id").
		Order("total DESC, MAX(settled_at) ASC, user_id ASC").
		Offset(offset).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Total = rows[i].Total.Round(2)
	}
	return rows, nil
}

func (s *GormStore) CountWindowParticipants(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.completedSince(ctx, since).Distinct("user_id").Count(&n).Error
	return n, err
}

func (s *GormStore) UserWindowTotal(ctx context.Context, userID uint, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := s.completedSince(ctx, since).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total.Round(2), nil
}

func (s *GormStore) CountWindowAbove(ctx context.Context, since time.Time, total decimal.Decimal) (int64, error) {
	sub := s.completedSince(ctx, since).
		Select("user_id").
		Group("user_id").
		Having("SUM(amount) > CAST(? AS DECIMAL(20,2))", total)

	var n int64
	err := s.db.WithContext(ctx).Table("(?) AS window_totals", sub).Count(&n).Error
	return n, err
}

func (s *GormStore) Badges(ctx context.Context, userIDs ...uint) (map[uint][]string, error) {
	out := make(map[uint][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.UserBadge
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("awarded_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, b := range rows {
		out[b.UserID] = append(out[b.UserID], b.BadgeName)
	}
	return out, nil
}

func (s *GormStore) FindPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) FindPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) PaymentsForUser(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (s *GormStore) PaymentStats(ctx context.Context, since time.Time) (models.PaymentStats, error) {
	stats := models.PaymentStats{Amount: decimal.Zero}
	row := s.completedSince(ctx, since).
		Select("COALESCE(SUM(amount), 0), COUNT(*)").
		Row()
	if err := row.Scan(&stats.Amount, &stats.Count); err != nil {
		return models.PaymentStats{}, err
	}
	stats.Amount = stats.Amount.Round(2)
	return stats, nil
}

func (s *GormStore) LedgerEntries(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, int64, error) {
	var entries []models.LedgerEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&models.LedgerEntry{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Export passes Limit <= 0 to read every matching row.
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.SpendReachedAt.IsZero() {
		user.SpendReachedAt = time.Now()
	}
	if user.ProfileTheme == "" {
		user.ProfileTheme = models.DefaultTheme
	}
	if user.Version == 0 {
		user.Version = 1
	}
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) UpdateProfile(ctx context.Context, id uint, update models.ProfileUpdate) (*models.User, error) {
	if !update.Empty() {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(update.Columns())
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return s.FindUser(ctx, id)
}

func (s *GormStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return translate(s.db.WithContext(ctx).Create(payment).Error)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) locked() *gorm.DB {
	// SELECT ... FOR UPDATE; sqlite ignores the clause and serializes writers instead.
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockUser(id uint) (*models.User, error) {
	var user models.User
	if err := t.locked().First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (t *gormTx) LockPayment(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := t.locked().First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) LockPaymentByReference(reference string) (*models.Payment, error) {
	var p models.Payment
	if err := t.locked().Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) CountUsersAbove(spend decimal.Decimal) (int64, error) {
	return countUsersAbove(t.db, spend)
}

func (t *gormTx) UpdateSpend(user *models.User, spend decimal.Decimal, at time.Time) error {
	currentVersion := user.Version
	result := t.db.Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, currentVersion).
		Updates(map[string]interface{}{
			"cumulative_spend": spend,
			"spend_reached_at": at,
			"version":          currentVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	user.CumulativeSpend = spend
	user.SpendReachedAt = at
	user.Version = currentVersion + 1
	return nil
}

func (t *gormTx) UpdateRank(userID uint, rank int) error {
	return t.db.Model(&models.User{}).Where("id = ?", userID).Update("current_rank", rank).Error
}

func (t *gormTx) SavePayment(payment *models.Payment) error {
	return translate(t.db.Save(payment).Error)
}

func (t *gormTx) Badges(userID uint) ([]string, error) {
	var names []string
	err := t.db.Model(&models.UserBadge{}).Where("user_id = ?", userID).Order("id ASC").Pluck("badge_name", &names).Error
	return names, err
}

func (t *gormTx) PaymentBadges(paymentID uint) ([]string, error) {
	var names []string
	err := t.db.Model(&models.UserBadge{}).Where("payment_id = ?", paymentID).Order("id ASC").Pluck("badge_name", &names).Error
	return names, err
}

func (t *gormTx) AwardBadges(userID, paymentID uint, names []string, at time.Time) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]models.UserBadge, 0, len(names))
	for _, n := range names {
		rows = append(rows, models.UserBadge{UserID: userID, BadgeName: n, PaymentID: paymentID, AwardedAt: at})
	}
	return t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (t *gormTx) AppendLedger(entry *models.LedgerEntry) error {
	return t.db.Create(entry).Error
}

func (t *gormTx) LedgerEntryFor(paymentID uint, entryType models.LedgerEntryType) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := t.db.Where("payment_id = ? AND type = ?", paymentID, entryType).Order("id DESC").First(&e).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}
