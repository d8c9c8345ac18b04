package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payrank-backend/internal/models"
	"payrank-backend/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const userCacheTTL = time.Hour

func userCacheKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// UserService reads profiles through an optional redis cache.
type UserService struct {
	store store.Store
	redis *redis.Client
	log   *zap.Logger
}

// NewUserService builds the service. rdb may be nil to disable caching.
func NewUserService(st store.Store, rdb *redis.Client, log *zap.Logger) *UserService {
	return &UserService{store: st, redis: rdb, log: log}
}

func (s *UserService) FindUser(ctx context.Context, userID uint) (*models.User, error) {
	// Try cache
	key := userCacheKey(userID)
	if s.redis != nil {
		val, err := s.redis.Get(ctx, key).Result()
		if err == nil {
			var user models.User
			if err := json.Unmarshal([]byte(val), &user); err == nil {
				return &user, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn("user cache read failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}

	// Set cache
	if s.redis != nil {
		if data, err := json.Marshal(user); err == nil {
			if err := s.redis.Set(ctx, key, data, userCacheTTL).Err(); err != nil {
				s.log.Warn("user cache write failed", zap.Uint("user_id", userID), zap.Error(err))
			}
		}
	}
	return user, nil
}

// Invalidate drops the cached profile of userID.
func (s *UserService) Invalidate(ctx context.Context, userID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, userCacheKey(userID)).Err(); err != nil {
		s.log.Warn("user cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// UpdateProfile changes display fields only; spend and rank are owned by settlement.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, update models.ProfileUpdate) (*models.User, error) {
	user, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}
	s.Invalidate(ctx, userID)
	return user, nil
}

// Rank returns the live global rank for u's cumulative spend.
func (s *UserService) Rank(ctx context.Context, u *models.User) (int, error) {
	above, err := s.store.CountUsersAbove(ctx, u.CumulativeSpend)
	if err != nil {
		return 0, classify(err)
	}
	return int(above) + 1, nil
}

func (s *UserService) Badges(ctx context.Context, userID uint) ([]string, error) {
	byUser, err := s.store.Badges(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	badges := byUser[userID]
	if badges == nil {
		badges = []string{}
	}
	return badges, nil
}
