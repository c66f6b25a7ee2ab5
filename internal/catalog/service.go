package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tvshelf.org/internal/ids"
	"tvshelf.org/internal/paging"
)

// Operation names checked by the Gate before any store access.
const (
	OpListShows  = "shows.list"
	OpReadShow   = "shows.read"
	OpCreateShow = "shows.create"
	OpUpdateShow = "shows.update"
	OpDeleteShow = "shows.delete"
)

const dateLayout = "2006-01-02"

// Gate decides whether the caller carried by ctx may run op against target.
type Gate interface {
	Authorize(ctx context.Context, op, targetID string) error
}

// ShowPage is one page of shows.
type ShowPage struct {
	Items []Show
	Total int
	Page  paging.Page
}

// Service exposes guarded catalogue operations.
type Service struct {
	store Store
	gate  Gate
	now   func() time.Time
}

// NewService wires the catalogue to its store and gate.
func NewService(store Store, gate Gate) *Service {
	return &Service{store: store, gate: gate, now: time.Now}
}

// List returns a page of shows.
func (s *Service) List(ctx context.Context, page paging.Page) (ShowPage, error) {
	if err := s.gate.Authorize(ctx, OpListShows, ""); err != nil {
		return ShowPage{}, err
	}
	page = page.Normalize()
	items, total, err := s.store.List(ctx, page.Offset(), page.Limit())
	if err != nil {
		return ShowPage{}, err
	}
	return ShowPage{Items: items, Total: total, Page: page}, nil
}

// Get loads a show by internal identifier.
func (s *Service) Get(ctx context.Context, id string) (Show, error) {
	if err := s.gate.Authorize(ctx, OpReadShow, id); err != nil {
		return Show{}, err
	}
	id = strings.TrimSpace(id)
	if !ids.Valid(id) {
		return Show{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.store.FindByID(ctx, id)
}

// GetByExternalID loads a show by its upstream catalogue identifier.
func (s *Service) GetByExternalID(ctx context.Context, externalID int64) (Show, error) {
	if err := s.gate.Authorize(ctx, OpReadShow, ""); err != nil {
		return Show{}, err
	}
	if externalID <= 0 {
		return Show{}, fmt.Errorf("%w: external id must be positive", ErrInvalidInput)
	}
	return s.store.FindByExternalID(ctx, externalID)
}

// Create validates and stores a new show.
func (s *Service) Create(ctx context.Context, show Show) (Show, error) {
	if err := s.gate.Authorize(ctx, OpCreateShow, ""); err != nil {
		return Show{}, err
	}
	show.Name = strings.TrimSpace(show.Name)
	show.OriginalName = strings.TrimSpace(show.OriginalName)
	if err := validateShow(show); err != nil {
		return Show{}, err
	}
	now := s.now().UTC()
	show.ID = ids.New()
	show.CreatedAt = now
	show.UpdatedAt = now
	return s.store.Create(ctx, show)
}

// Update applies a sparse patch to a show.
func (s *Service) Update(ctx context.Context, id string, upd ShowUpdate) (Show, error) {
	if err := s.gate.Authorize(ctx, OpUpdateShow, id); err != nil {
		return Show{}, err
	}
	id = strings.TrimSpace(id)
	if !ids.Valid(id) {
		return Show{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if upd.IsEmpty() {
		return Show{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if err := validateUpdate(upd); err != nil {
		return Show{}, err
	}
	return s.store.Update(ctx, id, upd, s.now().UTC())
}

// Delete removes a show. Account associations pointing at it are left in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.gate.Authorize(ctx, OpDeleteShow, id); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if !ids.Valid(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.store.DeleteByID(ctx, id)
}

func validateShow(show Show) error {
	if show.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if show.OriginalName == "" {
		return fmt.Errorf("%w: original_name is required", ErrInvalidInput)
	}
	if show.ExternalID < 0 {
		return fmt.Errorf("%w: external_id must not be negative", ErrInvalidInput)
	}
	if err := validateDate("first_air_date", show.FirstAirDate); err != nil {
		return err
	}
	if err := validateDate("last_air_date", show.LastAirDate); err != nil {
		return err
	}
	if show.NumberOfEpisodes < 0 || show.NumberOfSeasons < 0 || show.VoteCount < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidInput)
	}
	return nil
}

func validateUpdate(upd ShowUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrInvalidInput)
	}
	if upd.OriginalName != nil && strings.TrimSpace(*upd.OriginalName) == "" {
		return fmt.Errorf("%w: original_name cannot be blank", ErrInvalidInput)
	}
	if upd.ExternalID != nil && *upd.ExternalID < 0 {
		return fmt.Errorf("%w: external_id must not be negative", ErrInvalidInput)
	}
	if upd.FirstAirDate != nil {
		if err := validateDate("first_air_date", *upd.FirstAirDate); err != nil {
			return err
		}
	}
	if upd.LastAirDate != nil {
		if err := validateDate("last_air_date", *upd.LastAirDate); err != nil {
			return err
		}
	}
	return nil
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidInput, field)
	}
	return nil
}
