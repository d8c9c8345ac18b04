package leaderboard

import "payrank-backend/internal/services"

type TopResponse struct {
	Users []services.Entry `json:"users"`
}
