package services

import (
	"context"
	"sync"
	"time"

	"payrank-backend/internal/metrics"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const overtakenMessage = "Someone has overtaken you on the leaderboard!"

// Notifier publishes leaderboard events after a commit. Publishing is detached from the
// request and never fails the settlement that triggered it.
type Notifier struct {
	pub     notify.Publisher
	store   store.Reader
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(pub notify.Publisher, st store.Reader, log *zap.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		pub:     pub,
		store:   st,
		log:     log,
		metrics: m,
		timeout: 5 * time.Second,
	}
}

// SettlementCommitted announces the new standing of userID and tells every user it overtook.
func (n *Notifier) SettlementCommitted(userID uint, amount, newTotal decimal.Decimal, newRank int) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		n.publishUpdate(ctx, userID, newTotal, newRank)
		n.notifyOvertaken(ctx, userID, newTotal.Sub(amount), newTotal)
	}()
}

// RefundCommitted announces a lowered standing. Nobody is told they moved up.
func (n *Notifier) RefundCommitted(userID uint, newTotal decimal.Decimal, newRank int) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		n.publishUpdate(ctx, userID, newTotal, newRank)
	}()
}

// Wait blocks until every pending notification has been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) publishUpdate(ctx context.Context, userID uint, newTotal decimal.Decimal, newRank int) {
	n.publish(ctx, notify.TopicLeaderboard, notify.EventLeaderboardUpdate, notify.LeaderboardUpdate{
		UserID:        userID,
		NewTotalSpent: newTotal,
		NewRank:       newRank,
	})
}

// notifyOvertaken reaches users whose spend lies strictly between low and high.
func (n *Notifier) notifyOvertaken(ctx context.Context, userID uint, low, high decimal.Decimal) {
	overtaken, err := n.store.UsersBetween(ctx, low, high)
	if err != nil {
		n.metrics.NotificationsFailed.Inc()
		n.log.Warn("failed to load overtaken users", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	for _, u := range overtaken {
		if u.ID == userID {
			continue
		}
		above, err := n.store.CountUsersAbove(ctx, u.CumulativeSpend)
		if err != nil {
			n.metrics.NotificationsFailed.Inc()
			n.log.Warn("failed to rank overtaken user", zap.Uint("user_id", u.ID), zap.Error(err))
			continue
		}
		n.publish(ctx, notify.UserTopic(u.ID), notify.EventRankChange, notify.RankChange{
			Message: overtakenMessage,
			NewRank: int(above) + 1,
		})
	}
}

func (n *Notifier) publish(ctx context.Context, topic, eventType string, payload interface{}) {
	ev, err := notify.NewEvent(eventType, payload)
	if err == nil {
		err = n.pub.Publish(ctx, topic, ev)
	}
	if err != nil {
		n.metrics.NotificationsFailed.Inc()
		n.log.Warn("failed to publish event", zap.String("topic", topic), zap.String("type", eventType), zap.Error(err))
		return
	}
	n.metrics.NotificationsSent.WithLabelValues(eventType).Inc()
}
