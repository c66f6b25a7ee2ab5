package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tvshelf.org/internal/catalog"
)

// ShowStore implements catalog.Store.
type ShowStore struct{ s *Store }

var _ catalog.Store = (*ShowStore)(nil)

func (c *ShowStore) FindByID(_ context.Context, id string) (catalog.Show, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	show, ok := c.s.shows[id]
	if !ok {
		return catalog.Show{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return cloneShow(show), nil
}

func (c *ShowStore) FindByExternalID(_ context.Context, externalID int64) (catalog.Show, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	for _, show := range c.s.shows {
		if show.ExternalID == externalID {
			return cloneShow(show), nil
		}
	}
	return catalog.Show{}, fmt.Errorf("%w: external id %d", catalog.ErrNotFound, externalID)
}

// FindMany returns the shows for ids in the given order, skipping ids that no longer exist.
func (c *ShowStore) FindMany(_ context.Context, ids []string) ([]catalog.Show, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]catalog.Show, 0, len(ids))
	for _, id := range ids {
		if show, ok := c.s.shows[id]; ok {
			out = append(out, cloneShow(show))
		}
	}
	return out, nil
}

func (c *ShowStore) List(_ context.Context, skip, limit int) ([]catalog.Show, int, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	all := make([]catalog.Show, 0, len(c.s.shows))
	for _, show := range c.s.shows {
		all = append(all, show)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	start := min(max(skip, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}
	out := make([]catalog.Show, 0, end-start)
	for _, show := range all[start:end] {
		out = append(out, cloneShow(show))
	}
	return out, total, nil
}

func (c *ShowStore) Create(_ context.Context, show catalog.Show) (catalog.Show, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, exists := c.s.shows[show.ID]; exists {
		return catalog.Show{}, fmt.Errorf("%w: id %s", catalog.ErrConflict, show.ID)
	}
	if err := c.checkExternalLocked(show.ID, show.ExternalID); err != nil {
		return catalog.Show{}, err
	}
	c.s.shows[show.ID] = cloneShow(show)
	return cloneShow(show), nil
}

func (c *ShowStore) Update(_ context.Context, id string, upd catalog.ShowUpdate, updatedAt time.Time) (catalog.Show, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	show, ok := c.s.shows[id]
	if !ok {
		return catalog.Show{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	if upd.ExternalID != nil {
		if err := c.checkExternalLocked(id, *upd.ExternalID); err != nil {
			return catalog.Show{}, err
		}
	}
	upd.Apply(&show)
	show.UpdatedAt = updatedAt
	c.s.shows[id] = show
	return cloneShow(show), nil
}

func (c *ShowStore) DeleteByID(_ context.Context, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.shows[id]; !ok {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	delete(c.s.shows, id)
	return nil
}

func (c *ShowStore) checkExternalLocked(selfID string, externalID int64) error {
	if externalID == 0 {
		return nil
	}
	for id, other := range c.s.shows {
		if id != selfID && other.ExternalID == externalID {
			return fmt.Errorf("%w: external id %d", catalog.ErrConflict, externalID)
		}
	}
	return nil
}

func cloneShow(show catalog.Show) catalog.Show {
	out := show
	out.OriginCountry = append([]string(nil), show.OriginCountry...)
	out.CreatedBy = append([]string(nil), show.CreatedBy...)
	out.ProductionCompanies = append([]string(nil), show.ProductionCompanies...)
	out.Genres = append([]catalog.Genre(nil), show.Genres...)
	return out
}
