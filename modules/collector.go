package modules

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	apperrors "coinpulse/pkg/errors"
	"coinpulse/pkg/metrics"
)

// CollectorConfig bounds a collection run.
type CollectorConfig struct {
	Query      string
	Lookback   time.Duration
	PageSize   int
	MaxPages   int
	RatePerSec float64 // zero or less disables pacing
	Fields     []string
}

// Collector pages through recent posts for a query and keeps the
// high-signal ones.
type Collector struct {
	searcher Searcher
	cfg      CollectorConfig
	clock    clockwork.Clock
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewCollector(searcher Searcher, cfg CollectorConfig, clock clockwork.Clock, m *metrics.Metrics) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Collector{
		searcher: searcher,
		cfg:      cfg,
		clock:    clock,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   slog.Default().With("component", "collector"),
	}
}

// Pages yields raw provider pages in order. The time window is fixed when
// iteration starts. Iteration ends after a page without cursor, an empty page,
// MaxPages pages, or the first error, which is yielded once.
func (c *Collector) Pages(ctx context.Context, workspaceID string) iter.Seq2[PageResult, error] {
	return func(yield func(PageResult, error) bool) {
		since := c.clock.Now().Add(-c.cfg.Lookback)
		cursor := ""

		for page := 1; page <= c.cfg.MaxPages; page++ {
			if err := c.limiter.Wait(ctx); err != nil {
				yield(PageResult{}, apperrors.FetchError("search paused", err).WithContext("page", page))
				return
			}

			res, err := c.searcher.Search(ctx, SearchRequest{
				WorkspaceID: workspaceID,
				Query:       c.cfg.Query,
				Since:       since,
				PageSize:    c.cfg.PageSize,
				Cursor:      cursor,
				Fields:      c.cfg.Fields,
			})
			if err != nil {
				c.logger.ErrorContext(ctx, "Search request failed",
					"page", page,
					"has_cursor", cursor != "",
					"error", err)
				yield(PageResult{}, apperrors.FetchError("failed to fetch posts", err).WithContext("page", page))
				return
			}

			if len(res.Posts) == 0 {
				return
			}
			if !yield(res, nil) {
				return
			}
			if res.NextCursor == "" {
				return
			}
			if page == c.cfg.MaxPages {
				c.logger.WarnContext(ctx, "Page limit reached with more results available",
					"max_pages", c.cfg.MaxPages)
				return
			}
			cursor = res.NextCursor
		}
	}
}

// Collect returns the filtered posts of every page, concatenated in fetch
// order. Any page error aborts the whole collection.
func (c *Collector) Collect(ctx context.Context, workspaceID string) ([]Post, error) {
	var posts []Post
	pages := 0

	for res, err := range c.Pages(ctx, workspaceID) {
		if err != nil {
			return nil, err
		}
		pages++
		kept := FilterPosts(res.Posts)
		SortByEngagement(kept)
		c.metrics.ObservePage(len(kept), len(res.Posts)-len(kept))
		posts = append(posts, kept...)
	}

	c.logger.InfoContext(ctx, "Collected posts", "pages", pages, "posts", len(posts))
	return posts, nil
}

// KeepPost reports whether a post carries enough signal to score.
func KeepPost(p Post) bool {
	e := p.Engagement
	return e.Likes >= 5 || e.Shares >= 5 || e.Replies >= 2 || len(strings.Fields(p.Text)) > 5
}

// FilterPosts returns the posts that pass KeepPost, preserving order.
func FilterPosts(posts []Post) []Post {
	kept := make([]Post, 0, len(posts))
	for _, p := range posts {
		if KeepPost(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

// SortByEngagement orders posts by likes plus shares, highest first. Ties keep
// provider order.
func SortByEngagement(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		return cmp.Compare(b.Engagement.Total(), a.Engagement.Total())
	})
}
