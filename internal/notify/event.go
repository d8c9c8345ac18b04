// Package notify fans leaderboard events out to live subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	TopicLeaderboard = "leaderboard"

	EventLeaderboardUpdate = "leaderboard_update"
	EventRankChange        = "rank_change"
)

// UserTopic is the private topic of one user.
func UserTopic(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type LeaderboardUpdate struct {
	UserID        uint            `json:"userId"`
	NewTotalSpent decimal.Decimal `json:"newTotalSpent"`
	NewRank       int             `json:"newRank"`
}

type RankChange struct {
	Message string `json:"message"`
	NewRank int    `json:"newRank"`
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Publisher delivers an event to every subscriber of topic, at most once.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}
