package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/util"
)

const (
	discordAPIBase      = "https://discord.com/api/v10"
	maxEmbedsPerMessage = 10
	maxSendRetries      = 3
	colorPromotion      = 16753920 // #FFA500
)

// baseBackoff is the unit of exponential backoff for retryable responses.
var baseBackoff = time.Second

// ErrNoDestination is returned when neither a webhook nor a bot channel is configured.
var ErrNoDestination = errors.New("no discord destination configured")

type Client struct {
	webhookURL   string
	botToken     string
	apiBase      string
	affiliateTag string
	client       *http.Client
	rateLimiter  *rate.Limiter
	chunkDelay   time.Duration
}

// New returns a client that posts through the bot API when a bot token and
// channel are available, and through the webhook otherwise.
func New(webhookURL, botToken, affiliateTag string) *Client {
	return &Client{
		webhookURL:   webhookURL,
		botToken:     botToken,
		apiBase:      discordAPIBase,
		affiliateTag: affiliateTag,
		client:       &http.Client{Timeout: 10 * time.Second},
		// Discord allows 5 requests per 2 seconds per webhook.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
		chunkDelay:  time.Second,
	}
}

// Internal structures
type discordMessagePayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedThumbnail struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title     string                `json:"title,omitempty"`
	URL       string                `json:"url,omitempty"`
	Color     int                   `json:"color,omitempty"`
	Thumbnail discordEmbedThumbnail `json:"thumbnail,omitempty"`
	Fields    []discordEmbedField   `json:"fields,omitempty"`
}

// SendPromotion posts one promotion with an embed per product. Products are
// split across messages of at most ten embeds; the first carries the header.
func (c *Client) SendPromotion(ctx context.Context, channelID string, promo models.PromotionRecord) error {
	endpoint, auth, err := c.destination(channelID)
	if err != nil {
		if errors.Is(err, ErrNoDestination) {
			slog.Warn("Skipping promotion notification, no Discord destination", "promo_code", promo.Code)
			return nil
		}
		return err
	}

	embeds := make([]discordEmbed, 0, len(promo.Products))
	for _, p := range promo.Products {
		embeds = append(embeds, formatProductEmbed(p, c.affiliateTag))
	}

	header := formatPromotionHeader(promo)
	if len(embeds) == 0 {
		return c.post(ctx, endpoint, auth, discordMessagePayload{Content: header, Embeds: []discordEmbed{}})
	}

	first := true
	for chunk := range slices.Chunk(embeds, maxEmbedsPerMessage) {
		payload := discordMessagePayload{Embeds: chunk}
		if first {
			payload.Content = header
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.chunkDelay):
			}
		}
		first = false

		if err := c.post(ctx, endpoint, auth, payload); err != nil {
			return fmt.Errorf("failed to send promotion %s: %w", promo.Code, err)
		}
	}
	slog.Info("Sent promotion notification", "promo_code", promo.Code, "products", len(promo.Products))
	return nil
}

func (c *Client) destination(channelID string) (endpoint, auth string, err error) {
	if c.botToken != "" && channelID != "" {
		return fmt.Sprintf("%s/channels/%s/messages", c.apiBase, url.PathEscape(channelID)), "Bot " + c.botToken, nil
	}
	if c.webhookURL == "" {
		return "", "", ErrNoDestination
	}
	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()
	return parsedURL.String(), "", nil
}

func formatPromotionHeader(promo models.PromotionRecord) string {
	return fmt.Sprintf("@here **%s**\n Promotion Code - [%s](%s)", promo.Title, promo.Code, promo.PromotionURL)
}

func formatProductEmbed(p models.ProductDetails, affiliateTag string) discordEmbed {
	link, _ := util.AddAffiliateTag(p.ProductURL, affiliateTag)

	price := p.ProductPrice
	if price == "" {
		price = "N/A"
	}
	sales := "N/A"
	if p.ProductSales > 0 {
		sales = strconv.Itoa(p.ProductSales) + "+"
	}

	return discordEmbed{
		Title:     p.ProductTitle,
		URL:       link,
		Color:     colorPromotion,
		Thumbnail: discordEmbedThumbnail{URL: p.ProductImageURL},
		Fields: []discordEmbedField{
			{Name: "Current Price", Value: price, Inline: true},
			{Name: "Sales Last Month", Value: sales, Inline: true},
		},
	}
}

func (c *Client) post(ctx context.Context, endpoint, auth string, payload discordMessagePayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return util.RetryWithBackoff(ctx, maxSendRetries, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payloadBytes))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			io.Copy(io.Discard, resp.Body)
			return nil
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		statusErr := fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		if backoff := retryBackoff(resp, attempt); backoff > 0 {
			slog.Warn("Discord request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)
			return util.RetryAfter(statusErr, backoff)
		}
		return util.Permanent(statusErr)
	})
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the response is not retryable.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return time.Duration(1<<attempt) * baseBackoff
	case resp.StatusCode >= 500:
		return time.Duration(1<<attempt) * baseBackoff
	default:
		return 0
	}
}
