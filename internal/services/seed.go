package services

import (
	"context"
	"fmt"

	"payrank-backend/internal/models"
	"payrank-backend/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type demoUser struct {
	username    string
	displayName string
	theme       string
	spend       int64
}

var demoUsers = []demoUser{
	{"luxeuser", "Luxe User", "gold", 5000},
	{"silveruser", "Silver User", "silver", 2500},
	{"bronzeuser", "Bronze User", "bronze", 1000},
}

// SeedDemoData creates the demo accounts on an empty store and settles their opening spend
// through the regular workflow, so ranks, badges and ledger rows are all populated.
func SeedDemoData(ctx context.Context, st store.Store, settlement *SettlementService, log *zap.Logger) ([]models.User, error) {
	n, err := st.CountUsers(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if n > 0 {
		log.Info("store already populated, skipping demo seed", zap.Int64("users", n))
		return nil, nil
	}

	users := make([]models.User, 0, len(demoUsers))
	for _, d := range demoUsers {
		u := models.User{
			Username:     d.username,
			Email:        d.username + "@example.com",
			DisplayName:  d.displayName,
			ProfileTheme: d.theme,
		}
		if err := st.CreateUser(ctx, &u); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", d.username, err)
		}
		if _, err := settlement.SettlePayment(ctx, SettleRequest{
			UserID:        u.ID,
			Amount:        decimal.NewFromInt(d.spend),
			Reference:     "seed_" + d.username,
			PaymentMethod: "seed",
			Operator:      OperatorSystem,
		}); err != nil {
			return nil, fmt.Errorf("seed spend for %s: %w", d.username, err)
		}
		users = append(users, u)
	}

	log.Info("demo data seeded", zap.Int("users", len(users)))
	return users, nil
}
