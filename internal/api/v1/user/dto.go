package user

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserResponse defines the response structure for user information.
type UserResponse struct {
	ID           uint            `json:"id"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"displayName"`
	Avatar       string          `json:"avatar"`
	TotalSpent   decimal.Decimal `json:"totalSpent"`
	CurrentRank  int             `json:"currentRank"`
	Badges       []string        `json:"badges"`
	ProfileTheme string          `json:"profileTheme"`
	IsAnonymous  bool            `json:"isAnonymous"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// UpdateProfileRequest lists the fields a user may change. Omitted fields stay untouched.
type UpdateProfileRequest struct {
	DisplayName  *string `json:"displayName" binding:"omitempty,min=1,max=100"`
	Avatar       *string `json:"avatar" binding:"omitempty,max=255"`
	IsAnonymous  *bool   `json:"isAnonymous"`
	ProfileTheme *string `json:"profileTheme" binding:"omitempty,min=1,max=50"`
}
