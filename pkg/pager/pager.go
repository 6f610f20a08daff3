package pager

import (
	"context"
	"time"

	"bilicrawl/pkg/logger"
)

// Pages walks a page-numbered listing endpoint. The stream ends when a
// page comes back shorter than PageSize, or empty.
type Pages[T any] struct {
	// PageSize is the ps parameter sent per request. A batch shorter
	// than this marks the last page.
	PageSize int
	// StartPage is the first page collected (1-based). Zero means 1.
	StartPage int
	// MaxPages caps the number of collected pages. Zero means no cap.
	MaxPages int
	// Delay is the pause between page fetches.
	Delay time.Duration

	Logger logger.Logger

	// Fetch returns one page of items. It should already be
	// retry-wrapped; an error here ends the stream.
	Fetch func(ctx context.Context, page int) ([]T, error)
}

// Each invokes handle for every collected page, in order. A fetch error
// ends the stream quietly so the caller keeps what was already handled.
// A handle error stops iteration and is returned.
func (p *Pages[T]) Each(ctx context.Context, handle func(ctx context.Context, items []T) error) error {
	log := p.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	page := p.StartPage
	if page < 1 {
		page = 1
	}

	collected := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, err := p.Fetch(ctx, page)
		if err != nil {
			log.WithError(err).WithField("page", page).Warn("page fetch failed, keeping partial results")
			return nil
		}

		if len(items) == 0 {
			return nil
		}

		if err := handle(ctx, items); err != nil {
			return err
		}

		if len(items) < p.PageSize {
			return nil
		}

		collected++
		if p.MaxPages > 0 && collected >= p.MaxPages {
			return nil
		}

		if err := pause(ctx, p.Delay); err != nil {
			return err
		}
		page++
	}
}

// All collects every item across pages.
func (p *Pages[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	err := p.Each(ctx, func(ctx context.Context, items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}

// Cursor walks an opaque-offset listing endpoint. The stream ends when
// the server hands back an empty next offset.
type Cursor[T any] struct {
	// StartPage is the first page handed to handle, 1-based. Earlier
	// pages are still fetched, since offsets only come from walking,
	// but their items are discarded.
	StartPage int
	// MaxPages caps the number of collected pages. Zero means no cap.
	MaxPages int
	// Delay is the pause between page fetches.
	Delay time.Duration

	Logger logger.Logger

	// Fetch returns one page of items plus the next offset. The empty
	// string as offset requests the first page.
	Fetch func(ctx context.Context, offset string) (items []T, next string, err error)
}

// Each invokes handle for every collected page, in order. Skipped lead-in
// pages are not handed to handle. Fetch errors end the stream quietly;
// handle errors stop iteration and are returned.
func (c *Cursor[T]) Each(ctx context.Context, handle func(ctx context.Context, items []T) error) error {
	log := c.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	offset := ""
	skip := c.StartPage
	if skip > 0 {
		skip-- // page 1 means skip nothing
	}

	collected := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, next, err := c.Fetch(ctx, offset)
		if err != nil {
			log.WithError(err).WithField("offset", offset).Warn("page fetch failed, keeping partial results")
			return nil
		}

		if skip > 0 {
			skip--
		} else if len(items) > 0 {
			if err := handle(ctx, items); err != nil {
				return err
			}
			collected++
			if c.MaxPages > 0 && collected >= c.MaxPages {
				return nil
			}
		}

		if next == "" {
			return nil
		}

		if err := pause(ctx, c.Delay); err != nil {
			return err
		}
		offset = next
	}
}

// All collects every item across pages.
func (c *Cursor[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	err := c.Each(ctx, func(ctx context.Context, items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
