// Package filter turns harvested candidates into the final notification set:
// recently notified products and low sellers are dropped, duplicates removed,
// and the survivors recorded as notified.
package filter

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/validator"
)

// RecentStore remembers which products were notified and when.
type RecentStore interface {
	ListRecentASINs(ctx context.Context, since time.Time) (map[string]struct{}, error)
	RecordNotified(ctx context.Context, asin, promoCode string, at time.Time) error
}

// CutoffSource supplies the minimum monthly sales a product needs.
type CutoffSource interface {
	MonthlySalesCutoff() int
}

type Filter struct {
	store     RecentStore
	cutoff    CutoffSource
	window    time.Duration
	validator *validator.Validator
	now       func() time.Time
}

func New(store RecentStore, cutoff CutoffSource, window time.Duration) *Filter {
	return &Filter{
		store:     store,
		cutoff:    cutoff,
		window:    window,
		validator: validator.New(),
		now:       time.Now,
	}
}

// Apply filters candidates and returns the accepted records sorted by
// promotion code, plus the number of candidates seen.
func (f *Filter) Apply(ctx context.Context, candidates []models.ProductDetails) ([]models.ProductDetails, int, error) {
	now := f.now()
	recent, err := f.store.ListRecentASINs(ctx, now.Add(-f.window))
	if err != nil {
		return nil, len(candidates), fmt.Errorf("failed to read recently notified products: %w", err)
	}
	cutoff := f.cutoff.MonthlySalesCutoff()

	var dropped struct{ recent, sales, invalid, duplicate int }
	seen := make(map[[sha256.Size]byte]struct{})
	var accepted []models.ProductDetails
	for _, p := range candidates {
		if _, ok := recent[p.ASIN]; ok {
			dropped.recent++
			continue
		}
		if p.ProductSales < cutoff {
			dropped.sales++
			continue
		}
		if err := f.validator.ValidateStruct(p); err != nil {
			slog.Warn("Dropping invalid product record", "asin", p.ASIN, "promo_code", p.PromotionCode, "error", err)
			dropped.invalid++
			continue
		}
		key, err := recordHash(p)
		if err != nil {
			return nil, len(candidates), err
		}
		if _, ok := seen[key]; ok {
			dropped.duplicate++
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, p)
	}

	slices.SortStableFunc(accepted, func(a, b models.ProductDetails) int {
		return cmp.Or(cmp.Compare(a.PromotionCode, b.PromotionCode), cmp.Compare(a.ASIN, b.ASIN))
	})

	for _, p := range accepted {
		if err := f.store.RecordNotified(ctx, p.ASIN, p.PromotionCode, now); err != nil {
			slog.Error("Failed to record notified product", "asin", p.ASIN, "promo_code", p.PromotionCode, "error", err)
		}
	}

	slog.Info("Filtered promotion products",
		"candidates", len(candidates),
		"accepted", len(accepted),
		"dropped_recent", dropped.recent,
		"dropped_low_sales", dropped.sales,
		"dropped_invalid", dropped.invalid,
		"dropped_duplicate", dropped.duplicate,
		"sales_cutoff", cutoff)
	return accepted, len(candidates), nil
}

// recordHash identifies a record by the digest of its serialised form.
func recordHash(p models.ProductDetails) ([sha256.Size]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("failed to serialise product %s: %w", p.ASIN, err)
	}
	return sha256.Sum256(data), nil
}
