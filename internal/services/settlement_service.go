package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"payrank-backend/internal/badge"
	"payrank-backend/internal/metrics"
	"payrank-backend/internal/models"
	"payrank-backend/internal/payment"
	"payrank-backend/internal/rank"
	"payrank-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	OperatorGateway = "gateway"
	OperatorSystem  = "system"
)

type SettlementConfig struct {
	MinAmount       decimal.Decimal
	DefaultCurrency string
	LedgerSecret    string
	MaxAttempts     int
	// RetryDelay is the first backoff step; it doubles on every further attempt.
	RetryDelay time.Duration
	Clock      rank.Clock
}

// SettlementResult is returned for a fresh settlement and, with Duplicate set, for a replay of
// an already settled reference.
type SettlementResult struct {
	PaymentID  uint                 `json:"paymentId"`
	Reference  string               `json:"reference"`
	Status     models.PaymentStatus `json:"status"`
	Amount     decimal.Decimal      `json:"amount"`
	RankBefore int                  `json:"rankBefore"`
	RankAfter  int                  `json:"rankAfter"`
	NewTotal   decimal.Decimal      `json:"newTotal"`
	NewBadges  []string             `json:"newBadges"`
	Duplicate  bool                 `json:"duplicate"`
}

type RefundResult struct {
	PaymentID  uint            `json:"paymentId"`
	UserID     uint            `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	NewTotal   decimal.Decimal `json:"newTotal"`
	RankBefore int             `json:"rankBefore"`
	NewRank    int             `json:"newRank"`
	Duplicate  bool            `json:"duplicate"`
}

type InitiateRequest struct {
	UserID        uint
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Reference     string
	Metadata      datatypes.JSON
}

type SettleRequest struct {
	UserID        uint
	Amount        decimal.Decimal
	Reference     string
	Currency      string
	PaymentMethod string
	Operator      string
	Metadata      datatypes.JSON
}

type ProcessRequest struct {
	UserID        uint
	Username      string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
}

// cacheInvalidator drops cached copies of a user after their spend changed.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, userID uint)
}

// SettlementService owns the payment state machine: pending -> completed -> refunded, or
// pending -> failed.
type SettlementService struct {
	store    store.Store
	driver   payment.Driver
	notifier *Notifier
	cache    cacheInvalidator
	cfg      SettlementConfig
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewSettlementService(
	st store.Store,
	driver payment.Driver,
	notifier *Notifier,
	cache cacheInvalidator,
	cfg SettlementConfig,
	log *zap.Logger,
	m *metrics.Metrics,
) *SettlementService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 20 * time.Millisecond
	}
	if cfg.MinAmount.IsZero() {
		cfg.MinAmount = decimal.NewFromInt(1)
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.Clock == nil {
		cfg.Clock = rank.SystemClock{}
	}
	return &SettlementService{
		store:    st,
		driver:   driver,
		notifier: notifier,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// now is UTC at millisecond precision so the ledger hash survives a database round trip.
func (s *SettlementService) now() time.Time {
	return s.cfg.Clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *SettlementService) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if amount.LessThan(s.cfg.MinAmount) {
		return fmt.Errorf("%w: minimum payment amount is %s", ErrInvalidAmount, s.cfg.MinAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}

func (s *SettlementService) currency(c string) string {
	if c == "" {
		return s.cfg.DefaultCurrency
	}
	return strings.ToUpper(c)
}

func newReference() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// InitiatePayment records a pending payment waiting for gateway confirmation.
func (s *SettlementService) InitiatePayment(ctx context.Context, req InitiateRequest) (*models.Payment, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if _, err := s.store.FindUser(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}

	p := &models.Payment{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      s.currency(req.Currency),
		PaymentMethod: req.PaymentMethod,
		Reference:     req.Reference,
		Status:        models.PaymentStatusPending,
		Metadata:      req.Metadata,
	}
	if p.Reference == "" {
		p.Reference = newReference()
	}

	if err := s.store.CreatePayment(ctx, p); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, classify(err)
		}
		existing, findErr := s.store.FindPaymentByReference(ctx, p.Reference)
		if findErr != nil {
			return nil, classify(findErr)
		}
		// Re-initiating the same pending payment is a no-op.
		if existing.UserID == p.UserID && existing.Amount.Equal(p.Amount) && existing.Status == models.PaymentStatusPending {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: reference %s already used", ErrInvalidTransition, p.Reference)
	}

	s.log.Info("payment initiated",
		zap.Uint("payment_id", p.ID),
		zap.Uint("user_id", p.UserID),
		zap.String("reference", p.Reference),
		zap.String("amount", p.Amount.StringFixed(2)))
	return p, nil
}

// ProcessPayment charges the gateway synchronously and settles a successful charge.
func (s *SettlementService) ProcessPayment(ctx context.Context, req ProcessRequest) (*SettlementResult, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}
	if _, err := s.store.FindUser(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}

	currency := s.currency(req.Currency)
	key := newReference()
	res, err := s.driver.Charge(ctx, payment.ChargeRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Currency:       currency,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: key,
		Description:    fmt.Sprintf("rank payment for %s", req.Username),
	})
	if err != nil {
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.log.Error("gateway charge failed", zap.Uint("user_id", req.UserID), zap.String("gateway", s.driver.Name()), zap.Error(err))
		s.recordFailure(ctx, &models.Payment{
			UserID:        req.UserID,
			Amount:        req.Amount,
			Currency:      currency,
			PaymentMethod: req.PaymentMethod,
			Reference:     key,
			Status:        models.PaymentStatusFailed,
			FailureReason: err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	var meta datatypes.JSON
	if len(res.Metadata) > 0 {
		meta, _ = json.Marshal(res.Metadata)
	}

	switch res.Status {
	case payment.ChargeSucceeded:
		return s.SettlePayment(ctx, SettleRequest{
			UserID:        req.UserID,
			Amount:        req.Amount,
			Reference:     res.Reference,
			Currency:      currency,
			PaymentMethod: req.PaymentMethod,
			Operator:      req.Username,
			Metadata:      meta,
		})

	case payment.ChargePending:
		p, err := s.InitiatePayment(ctx, InitiateRequest{
			UserID:        req.UserID,
			Amount:        req.Amount,
			Currency:      currency,
			PaymentMethod: req.PaymentMethod,
			Reference:     res.Reference,
			Metadata:      meta,
		})
		if err != nil {
			return nil, err
		}
		return &SettlementResult{PaymentID: p.ID, Reference: p.Reference, Status: p.Status, Amount: p.Amount}, nil

	default:
		ref := res.Reference
		if ref == "" {
			ref = key
		}
		s.recordFailure(ctx, &models.Payment{
			UserID:        req.UserID,
			Amount:        req.Amount,
			Currency:      currency,
			PaymentMethod: req.PaymentMethod,
			Reference:     ref,
			Status:        models.PaymentStatusFailed,
			FailureReason: res.Reason,
			Metadata:      meta,
		})
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, res.Reason)
	}
}

// recordFailure keeps declined and errored charges in the payment history; losing the row is not fatal.
func (s *SettlementService) recordFailure(ctx context.Context, p *models.Payment) {
	if err := s.store.CreatePayment(ctx, p); err != nil {
		s.log.Warn("failed to record failed payment", zap.String("reference", p.Reference), zap.Error(err))
	}
}

// OnGatewayConfirmed settles a payment the gateway reported as paid.
func (s *SettlementService) OnGatewayConfirmed(ctx context.Context, ev payment.Event) (*SettlementResult, error) {
	userID := ev.UserID
	if userID == 0 {
		p, err := s.store.FindPaymentByReference(ctx, ev.Reference)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrPaymentNotFound
			}
			return nil, classify(err)
		}
		userID = p.UserID
	}
	return s.SettlePayment(ctx, SettleRequest{
		UserID:    userID,
		Amount:    ev.Amount,
		Reference: ev.Reference,
		Currency:  ev.Currency,
		Operator:  OperatorGateway,
	})
}

// OnGatewayFailed marks a pending payment failed. Repeated failure callbacks are no-ops.
func (s *SettlementService) OnGatewayFailed(ctx context.Context, reference, reason string) error {
	if reference == "" {
		return ErrInvalidReference
	}
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		p, err := tx.LockPaymentByReference(reference)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		switch p.Status {
		case models.PaymentStatusFailed:
			return nil
		case models.PaymentStatusPending:
			p.Status = models.PaymentStatusFailed
			p.FailureReason = reason
			return tx.SavePayment(p)
		default:
			return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, reference, p.Status)
		}
	})
	if err != nil {
		return classify(err)
	}

	s.metrics.Settlements.WithLabelValues(metrics.OutcomeFailed).Inc()
	s.log.Info("payment failed", zap.String("reference", reference), zap.String("reason", reason))
	return nil
}

// SettlePayment applies a confirmed payment: spend, rank snapshots, badges, ledger entry.
// Settling a reference twice returns the stored result with Duplicate set.
func (s *SettlementService) SettlePayment(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	start := time.Now()
	defer func() { s.metrics.SettlementDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.validateAmount(req.Amount); err != nil {
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}
	if req.Reference == "" {
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, ErrInvalidReference
	}
	if req.Operator == "" {
		req.Operator = OperatorSystem
	}
	req.Currency = s.currency(req.Currency)

	var result *SettlementResult
	err := s.retry(ctx, func() error {
		var err error
		result, err = s.settleOnce(ctx, req)
		return err
	})
	if err != nil {
		err = classify(err)
		s.metrics.Settlements.WithLabelValues(outcomeFor(err)).Inc()
		s.log.Warn("settlement rejected",
			zap.Uint("user_id", req.UserID),
			zap.String("reference", req.Reference),
			zap.Error(err))
		return nil, err
	}

	if result.Duplicate {
		s.metrics.Settlements.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		s.log.Info("duplicate settlement ignored", zap.String("reference", req.Reference), zap.Uint("payment_id", result.PaymentID))
		return result, nil
	}

	s.metrics.Settlements.WithLabelValues(metrics.OutcomeSettled).Inc()
	s.log.Info("payment settled",
		zap.Uint("payment_id", result.PaymentID),
		zap.Uint("user_id", req.UserID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("new_total", result.NewTotal.StringFixed(2)),
		zap.Int("rank_before", result.RankBefore),
		zap.Int("rank_after", result.RankAfter),
		zap.Strings("new_badges", result.NewBadges))

	if s.cache != nil {
		s.cache.Invalidate(ctx, req.UserID)
	}
	if s.notifier != nil {
		s.notifier.SettlementCommitted(req.UserID, req.Amount, result.NewTotal, result.RankAfter)
	}
	return result, nil
}

func (s *SettlementService) settleOnce(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		// 1. Lock the payment by reference
		p, err := tx.LockPaymentByReference(req.Reference)
		switch {
		case err == nil:
			switch p.Status {
			case models.PaymentStatusCompleted, models.PaymentStatusRefunded:
				result, err = s.storedResult(tx, p)
				return err
			case models.PaymentStatusFailed:
				return fmt.Errorf("%w: payment %s already failed", ErrInvalidTransition, req.Reference)
			}
			if p.UserID != req.UserID || !p.Amount.Equal(req.Amount) {
				return fmt.Errorf("%w: confirmation does not match pending payment %s", ErrInvalidTransition, req.Reference)
			}
		case errors.Is(err, store.ErrNotFound):
			p = nil
		default:
			return err
		}

		// 2. Lock the user
		user, err := tx.LockUser(req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		// 3. Rank before
		above, err := tx.CountUsersAbove(user.CumulativeSpend)
		if err != nil {
			return err
		}
		rankBefore := int(above) + 1

		// 4. Increment spend
		now := s.now()
		spendBefore := user.CumulativeSpend
		newTotal := spendBefore.Add(req.Amount)
		if err := tx.UpdateSpend(user, newTotal, now); err != nil {
			return err
		}

		// 5. Rank after, on the post-increment state
		above, err = tx.CountUsersAbove(newTotal)
		if err != nil {
			return err
		}
		rankAfter := int(above) + 1

		// 6. Persist the payment
		if p == nil {
			p = &models.Payment{
				UserID:        req.UserID,
				Amount:        req.Amount,
				Currency:      req.Currency,
				PaymentMethod: req.PaymentMethod,
				Reference:     req.Reference,
				Metadata:      req.Metadata,
			}
		}
		p.Status = models.PaymentStatusCompleted
		p.RankBefore = &rankBefore
		p.RankAfter = &rankAfter
		p.SettledAt = &now
		if err := tx.SavePayment(p); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Lost an insert race on the reference; the retry sees the winner and replays it.
				return store.ErrConflict
			}
			return err
		}

		// 7. Badges
		owned, err := tx.Badges(user.ID)
		if err != nil {
			return err
		}
		newBadges := badge.Missing(newTotal, owned)
		if newBadges == nil {
			newBadges = []string{}
		}
		if err := tx.AwardBadges(user.ID, p.ID, newBadges, now); err != nil {
			return err
		}

		// 8. Cache the rank on the user row
		if err := tx.UpdateRank(user.ID, rankAfter); err != nil {
			return err
		}

		// 9. Ledger entry
		entry := models.LedgerEntry{
			CreatedAt:   now,
			UserID:      user.ID,
			PaymentID:   p.ID,
			Type:        models.LedgerEntrySettlement,
			Amount:      req.Amount,
			SpendBefore: spendBefore,
			SpendAfter:  newTotal,
			RankBefore:  rankBefore,
			RankAfter:   rankAfter,
			Operator:    req.Operator,
		}
		entry.Hash = entry.GenerateHash(s.cfg.LedgerSecret)
		if err := tx.AppendLedger(&entry); err != nil {
			return err
		}

		result = &SettlementResult{
			PaymentID:  p.ID,
			Reference:  p.Reference,
			Status:     p.Status,
			Amount:     p.Amount,
			RankBefore: rankBefore,
			RankAfter:  rankAfter,
			NewTotal:   newTotal,
			NewBadges:  newBadges,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// storedResult rebuilds the result of an earlier settlement from its snapshots.
func (s *SettlementService) storedResult(tx store.Tx, p *models.Payment) (*SettlementResult, error) {
	res := &SettlementResult{
		PaymentID: p.ID,
		Reference: p.Reference,
		Status:    p.Status,
		Amount:    p.Amount,
		Duplicate: true,
	}
	if p.RankBefore != nil {
		res.RankBefore = *p.RankBefore
	}
	if p.RankAfter != nil {
		res.RankAfter = *p.RankAfter
	}

	entry, err := tx.LedgerEntryFor(p.ID, models.LedgerEntrySettlement)
	switch {
	case err == nil:
		res.NewTotal = entry.SpendAfter
	case errors.Is(err, store.ErrNotFound):
		// Imported without a ledger entry; fall back to the current total.
		user, err := tx.LockUser(p.UserID)
		if err != nil {
			return nil, err
		}
		res.NewTotal = user.CumulativeSpend
	default:
		return nil, err
	}

	res.NewBadges, err = tx.PaymentBadges(p.ID)
	if err != nil {
		return nil, err
	}
	if res.NewBadges == nil {
		res.NewBadges = []string{}
	}
	return res, nil
}

// RefundPayment reverses a completed payment. Spend never drops below zero, historical rank
// snapshots and badges are kept.
func (s *SettlementService) RefundPayment(ctx context.Context, paymentID uint, operator string) (*RefundResult, error) {
	if operator == "" {
		operator = OperatorSystem
	}

	var result *RefundResult
	err := s.retry(ctx, func() error {
		var err error
		result, err = s.refundOnce(ctx, paymentID, operator)
		return err
	})
	if err != nil {
		err = classify(err)
		s.metrics.Refunds.WithLabelValues(outcomeFor(err)).Inc()
		s.log.Warn("refund rejected", zap.Uint("payment_id", paymentID), zap.Error(err))
		return nil, err
	}

	if result.Duplicate {
		s.metrics.Refunds.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return result, nil
	}

	s.metrics.Refunds.WithLabelValues(metrics.OutcomeRefunded).Inc()
	s.log.Info("payment refunded",
		zap.Uint("payment_id", paymentID),
		zap.Uint("user_id", result.UserID),
		zap.String("operator", operator),
		zap.String("new_total", result.NewTotal.StringFixed(2)),
		zap.Int("new_rank", result.NewRank))

	if s.cache != nil {
		s.cache.Invalidate(ctx, result.UserID)
	}
	if s.notifier != nil {
		s.notifier.RefundCommitted(result.UserID, result.NewTotal, result.NewRank)
	}
	return result, nil
}

// lockOwner locks the user a payment belongs to.
func lockOwner(tx store.Tx, userID uint) (*models.User, error) {
	user, err := tx.LockUser(userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *SettlementService) refundOnce(ctx context.Context, paymentID uint, operator string) (*RefundResult, error) {
	var result *RefundResult

	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		p, err := tx.LockPayment(paymentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		switch p.Status {
		case models.PaymentStatusRefunded:
			user, err := lockOwner(tx, p.UserID)
			if err != nil {
				return err
			}
			above, err := tx.CountUsersAbove(user.CumulativeSpend)
			if err != nil {
				return err
			}
			result = &RefundResult{
				PaymentID: p.ID,
				UserID:    p.UserID,
				Amount:    p.Amount,
				NewTotal:  user.CumulativeSpend,
				NewRank:   int(above) + 1,
				Duplicate: true,
			}
			return nil
		case models.PaymentStatusCompleted:
		default:
			return fmt.Errorf("%w: cannot refund a %s payment", ErrInvalidTransition, p.Status)
		}

		user, err := lockOwner(tx, p.UserID)
		if err != nil {
			return err
		}

		above, err := tx.CountUsersAbove(user.CumulativeSpend)
		if err != nil {
			return err
		}
		rankBefore := int(above) + 1

		now := s.now()
		spendBefore := user.CumulativeSpend
		newTotal := decimal.Max(decimal.Zero, spendBefore.Sub(p.Amount))
		if err := tx.UpdateSpend(user, newTotal, now); err != nil {
			return err
		}

		above, err = tx.CountUsersAbove(newTotal)
		if err != nil {
			return err
		}
		newRank := int(above) + 1

		p.Status = models.PaymentStatusRefunded
		p.RefundedAt = &now
		if err := tx.SavePayment(p); err != nil {
			return err
		}
		if err := tx.UpdateRank(user.ID, newRank); err != nil {
			return err
		}

		entry := models.LedgerEntry{
			CreatedAt:   now,
			UserID:      user.ID,
			PaymentID:   p.ID,
			Type:        models.LedgerEntryRefund,
			Amount:      newTotal.Sub(spendBefore),
			SpendBefore: spendBefore,
			SpendAfter:  newTotal,
			RankBefore:  rankBefore,
			RankAfter:   newRank,
			Operator:    operator,
		}
		entry.Hash = entry.GenerateHash(s.cfg.LedgerSecret)
		if err := tx.AppendLedger(&entry); err != nil {
			return err
		}

		result = &RefundResult{
			PaymentID:  p.ID,
			UserID:     user.ID,
			Amount:     p.Amount,
			NewTotal:   newTotal,
			RankBefore: rankBefore,
			NewRank:    newRank,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retry runs fn again with exponential backoff while it reports a concurrent modification.
func (s *SettlementService) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * s.cfg.RetryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			s.metrics.SettlementRetries.Inc()
		}

		err = fn()
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return err
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrStorageFailure):
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeRejected
	}
}
