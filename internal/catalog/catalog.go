// Package catalog is the in-memory set of display sets available to the viewer.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/events"
	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

// ErrInvalidDisplaySet is returned when a display set lacks a UID.
var ErrInvalidDisplaySet = errors.New("invalid display set")

// Catalog holds display sets keyed by UID.
type Catalog struct {
	mu        sync.RWMutex
	sets      map[string]models.DisplaySet
	publisher events.Publisher
	logger    zerolog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPublisher announces additions and removals on p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Catalog) {
		c.publisher = p
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		sets:   make(map[string]models.DisplaySet),
		logger: logging.Component("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add inserts or replaces display sets. Nothing is added if any set is invalid.
func (c *Catalog) Add(ctx context.Context, sets ...models.DisplaySet) error {
	for i, ds := range sets {
		if ds.UID == "" {
			return fmt.Errorf("%w: sets[%d] has no uid", ErrInvalidDisplaySet, i)
		}
	}

	c.mu.Lock()
	for _, ds := range sets {
		ds.Attributes = maps.Clone(ds.Attributes)
		c.sets[ds.UID] = ds
	}
	c.mu.Unlock()

	for _, ds := range sets {
		c.logger.Debug().
			Str("uid", ds.UID).
			Str("modality", ds.Modality).
			Interface("attributes", logging.RedactAttributes(ds.Attributes)).
			Msg("display set added")
		c.publish(ctx, events.NewEvent(models.EventTypeContentAdded, models.EntityTypeContent, ds.UID, nil))
	}
	return nil
}

// Remove deletes display sets and publishes one content.removed event
// listing the UIDs that were present.
func (c *Catalog) Remove(ctx context.Context, uids ...string) []string {
	c.mu.Lock()
	var removed []string
	for _, uid := range uids {
		if _, ok := c.sets[uid]; ok {
			delete(c.sets, uid)
			removed = append(removed, uid)
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	c.logger.Debug().Strs("uids", removed).Msg("display sets removed")
	c.publish(ctx, events.NewEvent(models.EventTypeContentRemoved, models.EntityTypeContent, removed[0],
		models.ContentRemovedPayload{DisplaySetUIDs: slices.Clone(removed)}))
	return removed
}

// DisplaySetByUID looks up one display set.
func (c *Catalog) DisplaySetByUID(uid string) (models.DisplaySet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.sets[uid]
	return ds, ok
}

// DisplaySetsForSeries returns the display sets built from a series.
func (c *Catalog) DisplaySetsForSeries(seriesUID string) []models.DisplaySet {
	return c.filter(func(ds models.DisplaySet) bool { return ds.SeriesUID == seriesUID })
}

// DisplaySetsForStudy returns the display sets of a study.
func (c *Catalog) DisplaySetsForStudy(studyUID string) []models.DisplaySet {
	return c.filter(func(ds models.DisplaySet) bool { return ds.StudyUID == studyUID })
}

// ActiveDisplaySets returns every display set in catalog order.
func (c *Catalog) ActiveDisplaySets() []models.DisplaySet {
	return c.filter(func(models.DisplaySet) bool { return true })
}

// Studies lists the distinct study UIDs, sorted.
func (c *Catalog) Studies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, ds := range c.sets {
		seen[ds.StudyUID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Len returns the number of display sets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

// filter returns matches ordered by study, series number, then UID.
func (c *Catalog) filter(keep func(models.DisplaySet) bool) []models.DisplaySet {
	c.mu.RLock()
	var out []models.DisplaySet
	for _, ds := range c.sets {
		if keep(ds) {
			out = append(out, ds)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.DisplaySet) int {
		return cmp.Or(
			cmp.Compare(a.StudyUID, b.StudyUID),
			cmp.Compare(a.SeriesNumber, b.SeriesNumber),
			cmp.Compare(a.UID, b.UID),
		)
	})
	return out
}

func (c *Catalog) publish(ctx context.Context, event *models.Event) {
	if c.publisher != nil {
		c.publisher.Publish(ctx, event)
	}
}
