package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"github.com/pauljones0/amazon-promo-bot/internal/config"
	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
	"github.com/pauljones0/amazon-promo-bot/internal/scraper"
)

// LevelCritical marks alerts that need an operator.
const LevelCritical = slog.Level(12)

// State is a step of one pipeline attempt.
type State string

const (
	StateInit              State = "INIT"
	StateRegionSetup       State = "REGION_SETUP"
	StateDiscoverLinks     State = "DISCOVER_LINKS"
	StateExtractPromoCodes State = "EXTRACT_PROMO_CODES"
	StateHarvestPromotions State = "HARVEST_PROMOTIONS"
	StateFilter            State = "FILTER"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Pipeline runs the scraping stages in order and retries the whole attempt
// when any stage fails.
type Pipeline struct {
	terms    SearchTermSource
	scraper  scraper.Scraper
	filter   ResultFilter
	pacer    *pacing.Controller
	attempts uint
	backoff  time.Duration
	jitter   time.Duration
	newRunID func() string
}

func NewPipeline(terms SearchTermSource, s scraper.Scraper, f ResultFilter, pacer *pacing.Controller, cfg *config.Config) *Pipeline {
	return &Pipeline{
		terms:    terms,
		scraper:  s,
		filter:   f,
		pacer:    pacer,
		attempts: uint(max(cfg.RetryAttempts, 1)),
		backoff:  cfg.RetryBackoff,
		jitter:   cfg.RetryJitter,
		newRunID: uuid.NewString,
	}
}

// RunScrape performs up to the configured number of attempts and returns the
// accepted products and the number of candidates the filter saw. When every
// attempt fails the error wraps models.ErrPipelineExhausted.
func (p *Pipeline) RunScrape(ctx context.Context) ([]models.ProductDetails, int, error) {
	runID := p.newRunID()
	var (
		results []models.ProductDetails
		total   int
		attempt uint
	)

	err := retry.Do(
		func() error {
			attempt++
			var err error
			results, total, err = p.runAttempt(ctx, runID, attempt)
			if err != nil && ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return err
		},
		retry.Attempts(p.attempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return pacing.Delay(p.backoff, p.jitter)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Scrape attempt failed", "run_id", runID, "attempt", n+1, "max_attempts", p.attempts, "error", err)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		slog.Log(ctx, LevelCritical, "Scrape pipeline exhausted all attempts", "run_id", runID, "attempts", attempt, "error", err)
		return nil, 0, fmt.Errorf("%w after %d attempts: %w", models.ErrPipelineExhausted, attempt, err)
	}

	slog.Info("Scrape run complete", "run_id", runID, "attempts", attempt, "results", len(results), "candidates", total)
	return results, total, nil
}

func (p *Pipeline) runAttempt(ctx context.Context, runID string, attempt uint) (results []models.ProductDetails, total int, err error) {
	log := slog.With("run_id", runID, "attempt", attempt)
	state := StateInit
	enter := func(next State) error {
		if state != StateInit {
			if err := p.pacer.Pause(ctx, pacing.BetweenPipelineSteps); err != nil {
				return err
			}
		}
		log.Info("Pipeline state", "from", state, "to", next)
		state = next
		return nil
	}
	defer func() {
		if err != nil {
			log.Error("Pipeline attempt failed", "state", state, "to", StateFailed, "error", err)
		}
	}()

	log.Info("Pipeline state", "to", StateInit)
	terms, err := p.terms.ListSearchTerms(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read search terms: %w", err)
	}
	if len(terms) == 0 {
		log.Warn("No search terms configured, nothing to scrape")
		log.Info("Pipeline state", "from", state, "to", StateDone)
		return nil, 0, nil
	}

	if err := enter(StateRegionSetup); err != nil {
		return nil, 0, err
	}
	if err := p.scraper.SetupRegion(ctx); err != nil {
		return nil, 0, err
	}

	if err := enter(StateDiscoverLinks); err != nil {
		return nil, 0, err
	}
	links, err := p.scraper.DiscoverLinks(ctx, terms)
	if err != nil {
		return nil, 0, err
	}

	if err := enter(StateExtractPromoCodes); err != nil {
		return nil, 0, err
	}
	codes, err := p.scraper.ExtractPromoCodes(ctx, links)
	if err != nil {
		return nil, 0, err
	}

	if err := enter(StateHarvestPromotions); err != nil {
		return nil, 0, err
	}
	records, err := p.scraper.HarvestPromotions(ctx, codes, terms)
	if err != nil {
		return nil, 0, err
	}

	if err := enter(StateFilter); err != nil {
		return nil, 0, err
	}
	var candidates []models.ProductDetails
	for _, r := range records {
		candidates = append(candidates, r.Products...)
	}
	results, total, err = p.filter.Apply(ctx, candidates)
	if err != nil {
		return nil, 0, err
	}

	log.Info("Pipeline state", "from", state, "to", StateDone,
		"links", len(links), "codes", len(codes), "promotions", len(records), "results", len(results))
	return results, total, nil
}

// IsExhausted reports whether err means every attempt failed.
func IsExhausted(err error) bool {
	return errors.Is(err, models.ErrPipelineExhausted)
}
