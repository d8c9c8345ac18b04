package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"payrank-backend/internal/models"
	"payrank-backend/internal/store"
)

// LedgerService exposes the settlement audit trail to operators.
type LedgerService struct {
	store  store.Reader
	secret string
}

func NewLedgerService(st store.Reader, secret string) *LedgerService {
	return &LedgerService{store: st, secret: secret}
}

// FindLedgerEntries retrieves a paginated list of ledger entries with filtering
func (s *LedgerService) FindLedgerEntries(ctx context.Context, filter store.LedgerFilter) ([]models.LedgerEntry, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)
	entries, total, err := s.store.LedgerEntries(ctx, filter)
	if err != nil {
		return nil, 0, classify(err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, total, nil
}

// ExportCSV renders every entry matching filter, ignoring its paging.
func (s *LedgerService) ExportCSV(ctx context.Context, filter store.LedgerFilter) ([]byte, error) {
	filter.Page, filter.Limit = 1, 0
	entries, _, err := s.store.LedgerEntries(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}
	return GenerateLedgerCSV(entries, s.secret)
}

// Tampered returns the IDs of entries whose hash does not match their content.
func (s *LedgerService) Tampered(ctx context.Context, filter store.LedgerFilter) ([]uint, error) {
	filter.Page, filter.Limit = 1, 0
	entries, _, err := s.store.LedgerEntries(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}
	ids := []uint{}
	for i := range entries {
		if !entries[i].Verify(s.secret) {
			ids = append(ids, entries[i].ID)
		}
	}
	return ids, nil
}

// GenerateLedgerCSV generates a CSV file content for ledger entries
func GenerateLedgerCSV(entries []models.LedgerEntry, secret string) ([]byte, error) {
	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	// Write header
	header := []string{
		"ID", "Time", "User ID", "Payment ID", "Type", "Amount",
		"Spend Before", "Spend After", "Rank Before", "Rank After",
		"Operator", "Hash", "Verified",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	// Write data
	for i := range entries {
		e := &entries[i]
		record := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatUint(uint64(e.UserID), 10),
			strconv.FormatUint(uint64(e.PaymentID), 10),
			string(e.Type),
			e.Amount.StringFixed(2),
			e.SpendBefore.StringFixed(2),
			e.SpendAfter.StringFixed(2),
			strconv.Itoa(e.RankBefore),
			strconv.Itoa(e.RankAfter),
			e.Operator,
			e.Hash,
			strconv.FormatBool(e.Verify(secret)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
