package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultAvatar = "default-avatar.png"
	DefaultTheme  = "default"
)

type User struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Username        string          `gorm:"uniqueIndex;not null" json:"username"`
	Email           string          `gorm:"type:varchar(255)" json:"email"`
	DisplayName     string          `gorm:"type:varchar(100)" json:"display_name"`
	Avatar          string          `gorm:"type:varchar(255)" json:"avatar"`
	CumulativeSpend decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0;index" json:"cumulative_spend"`
	CurrentRank     int             `gorm:"not null;default:0" json:"current_rank"`
	SpendReachedAt  time.Time       `gorm:"not null" json:"spend_reached_at"` // Last change of CumulativeSpend; tie-break
	IsAnonymous     bool            `gorm:"default:false" json:"is_anonymous"`
	ProfileTheme    string          `gorm:"type:varchar(50);not null;default:'default'" json:"profile_theme"`
	Version         int             `gorm:"default:1" json:"version"`
}

// PublicUsername is the name shown on public boards.
func (u *User) PublicUsername() string {
	if !u.IsAnonymous {
		return u.Username
	}
	id := fmt.Sprintf("%d", u.ID)
	if len(id) > 4 {
		id = id[:4]
	}
	return "Anonymous" + id
}

func (u *User) PublicDisplayName() string {
	if u.IsAnonymous {
		return "Anonymous User"
	}
	if u.DisplayName == "" {
		return u.Username
	}
	return u.DisplayName
}

func (u *User) AvatarOrDefault() string {
	if u.Avatar == "" {
		return DefaultAvatar
	}
	return u.Avatar
}

func (u *User) ThemeOrDefault() string {
	if u.ProfileTheme == "" {
		return DefaultTheme
	}
	return u.ProfileTheme
}

// ProfileUpdate lists the display fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName  *string
	Avatar       *string
	IsAnonymous  *bool
	ProfileTheme *string
}

// Columns returns the column/value pairs to write, keyed by column name.
func (p ProfileUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.DisplayName != nil {
		cols["display_name"] = *p.DisplayName
	}
	if p.Avatar != nil {
		cols["avatar"] = *p.Avatar
	}
	if p.IsAnonymous != nil {
		cols["is_anonymous"] = *p.IsAnonymous
	}
	if p.ProfileTheme != nil {
		cols["profile_theme"] = *p.ProfileTheme
	}
	return cols
}

// Apply copies the set fields onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.IsAnonymous != nil {
		u.IsAnonymous = *p.IsAnonymous
	}
	if p.ProfileTheme != nil {
		u.ProfileTheme = *p.ProfileTheme
	}
}

func (p ProfileUpdate) Empty() bool {
	return len(p.Columns()) == 0
}
