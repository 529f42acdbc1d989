package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
)

const (
	searchesCollection = "searches"
	recentCollection   = "recent_products"
	settingsCollection = "settings"
	notificationDocID  = "notification"
)

// ErrEmptySearchTerm is returned when a blank search term is added.
var ErrEmptySearchTerm = errors.New("search term is empty")

type searchDoc struct {
	Term      string    `firestore:"term"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ListSearchTerms returns every configured search term.
func (c *Client) ListSearchTerms(ctx context.Context) ([]string, error) {
	iter := c.client.Collection(searchesCollection).Documents(ctx)
	defer iter.Stop()

	var terms []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list search terms: %w", err)
		}
		var s searchDoc
		if err := doc.DataTo(&s); err != nil {
			slog.Warn("Skipping malformed search term document", "id", doc.Ref.ID, "error", err)
			continue
		}
		if term := strings.TrimSpace(s.Term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms, nil
}

// AddSearchTerm stores a term. Adding an existing term is a no-op.
func (c *Client) AddSearchTerm(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return ErrEmptySearchTerm
	}
	_, err := c.client.Collection(searchesCollection).Doc(searchTermID(term)).Create(ctx, searchDoc{Term: term, CreatedAt: time.Now()})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to add search term %q: %w", term, err)
	}
	return nil
}

// RemoveSearchTerm deletes a term. Removing an unknown term is a no-op.
func (c *Client) RemoveSearchTerm(ctx context.Context, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return ErrEmptySearchTerm
	}
	_, err := c.client.Collection(searchesCollection).Doc(searchTermID(term)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to remove search term %q: %w", term, err)
	}
	return nil
}

// searchTermID maps a term to a stable document ID. Firestore IDs may not
// contain slashes.
func searchTermID(term string) string {
	id := strings.ToLower(strings.Join(strings.Fields(term), " "))
	return strings.ReplaceAll(id, "/", "_")
}

// IsRecentlyNotified reports whether asin was notified at or after since.
func (c *Client) IsRecentlyNotified(ctx context.Context, asin string, since time.Time) (bool, error) {
	doc, err := c.client.Collection(recentCollection).Doc(asin).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get recent product %s: %w", asin, err)
	}
	var rp models.RecentProduct
	if err := doc.DataTo(&rp); err != nil {
		return false, fmt.Errorf("failed to unmarshal recent product %s: %w", asin, err)
	}
	return !rp.LastUpdated.Before(since), nil
}

// ListRecentASINs returns the ASINs notified at or after since.
func (c *Client) ListRecentASINs(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	iter := c.client.Collection(recentCollection).
		Where("lastUpdated", ">=", since).
		Documents(ctx)
	defer iter.Stop()

	asins := make(map[string]struct{})
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list recent products: %w", err)
		}
		asins[doc.Ref.ID] = struct{}{}
	}
	return asins, nil
}

// RecordNotified upserts the recent-product entry for asin.
func (c *Client) RecordNotified(ctx context.Context, asin, promoCode string, at time.Time) error {
	_, err := c.client.Collection(recentCollection).Doc(asin).Set(ctx, models.RecentProduct{
		ASIN:        asin,
		PromoCode:   promoCode,
		LastUpdated: at,
	})
	if err != nil {
		return fmt.Errorf("failed to record notified product %s: %w", asin, err)
	}
	return nil
}

// CountRecentProducts returns the number of recent-product entries.
func (c *Client) CountRecentProducts(ctx context.Context) (int64, error) {
	result, err := c.client.Collection(recentCollection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent products: %w", err)
	}
	value, ok := result["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: 'all' key missing")
	}
	return aggregationCount(value)
}

func aggregationCount(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}

// TrimRecentProducts deletes entries last updated before olderThan and
// returns how many were queued for deletion.
func (c *Client) TrimRecentProducts(ctx context.Context, olderThan time.Time) (int, error) {
	iter := c.client.Collection(recentCollection).
		Where("lastUpdated", "<", olderThan).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to iterate recent products for trimming: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue recent product delete", "asin", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		bulkWriter.Flush()
		slog.Info("Trimmed recent products", "deleted", deleted, "older_than", olderThan)
	}
	return deleted, nil
}

// LoadSettings reads the notification settings. found is false when none
// have been saved yet.
func (c *Client) LoadSettings(ctx context.Context) (s models.NotificationSettings, found bool, err error) {
	doc, err := c.client.Collection(settingsCollection).Doc(notificationDocID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.NotificationSettings{}, false, nil
		}
		return models.NotificationSettings{}, false, fmt.Errorf("failed to load notification settings: %w", err)
	}
	if err := doc.DataTo(&s); err != nil {
		return models.NotificationSettings{}, false, fmt.Errorf("failed to unmarshal notification settings: %w", err)
	}
	return s, true, nil
}

func (c *Client) SaveSettings(ctx context.Context, s models.NotificationSettings) error {
	if _, err := c.client.Collection(settingsCollection).Doc(notificationDocID).Set(ctx, s); err != nil {
		return fmt.Errorf("failed to save notification settings: %w", err)
	}
	return nil
}
