package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("catalog: show not found")
	ErrInvalidInput = errors.New("catalog: invalid input")
	ErrConflict     = errors.New("catalog: show already exists")
)

// Genre is a catalogue genre tag.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Show is a TV show record. ExternalID is the identifier assigned by the upstream
// catalogue; ID is ours.
type Show struct {
	ID                  string    `json:"id"`
	ExternalID          int64     `json:"external_id"`
	Name                string    `json:"name"`
	OriginalName        string    `json:"original_name"`
	Overview            string    `json:"overview,omitempty"`
	Tagline             string    `json:"tagline,omitempty"`
	InProduction        bool      `json:"in_production"`
	Status              string    `json:"status,omitempty"`
	OriginalLanguage    string    `json:"original_language,omitempty"`
	OriginCountry       []string  `json:"origin_country,omitempty"`
	CreatedBy           []string  `json:"created_by,omitempty"`
	FirstAirDate        string    `json:"first_air_date,omitempty"`
	LastAirDate         string    `json:"last_air_date,omitempty"`
	NumberOfEpisodes    int       `json:"number_of_episodes"`
	NumberOfSeasons     int       `json:"number_of_seasons"`
	ProductionCompanies []string  `json:"production_companies,omitempty"`
	PosterPath          string    `json:"poster_path,omitempty"`
	Genres              []Genre   `json:"genres,omitempty"`
	VoteAverage         float64   `json:"vote_average"`
	VoteCount           int       `json:"vote_count"`
	Popularity          float64   `json:"popularity"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ShowUpdate is a sparse patch; nil fields are left untouched.
type ShowUpdate struct {
	ExternalID          *int64    `json:"external_id,omitempty"`
	Name                *string   `json:"name,omitempty"`
	OriginalName        *string   `json:"original_name,omitempty"`
	Overview            *string   `json:"overview,omitempty"`
	Tagline             *string   `json:"tagline,omitempty"`
	InProduction        *bool     `json:"in_production,omitempty"`
	Status              *string   `json:"status,omitempty"`
	OriginalLanguage    *string   `json:"original_language,omitempty"`
	OriginCountry       *[]string `json:"origin_country,omitempty"`
	CreatedBy           *[]string `json:"created_by,omitempty"`
	FirstAirDate        *string   `json:"first_air_date,omitempty"`
	LastAirDate         *string   `json:"last_air_date,omitempty"`
	NumberOfEpisodes    *int      `json:"number_of_episodes,omitempty"`
	NumberOfSeasons     *int      `json:"number_of_seasons,omitempty"`
	ProductionCompanies *[]string `json:"production_companies,omitempty"`
	PosterPath          *string   `json:"poster_path,omitempty"`
	Genres              *[]Genre  `json:"genres,omitempty"`
	VoteAverage         *float64  `json:"vote_average,omitempty"`
	VoteCount           *int      `json:"vote_count,omitempty"`
	Popularity          *float64  `json:"popularity,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (u ShowUpdate) IsEmpty() bool {
	return u == ShowUpdate{}
}

// Apply copies every set field of u onto show.
func (u ShowUpdate) Apply(show *Show) {
	if u.ExternalID != nil {
		show.ExternalID = *u.ExternalID
	}
	if u.Name != nil {
		show.Name = *u.Name
	}
	if u.OriginalName != nil {
		show.OriginalName = *u.OriginalName
	}
	if u.Overview != nil {
		show.Overview = *u.Overview
	}
	if u.Tagline != nil {
		show.Tagline = *u.Tagline
	}
	if u.InProduction != nil {
		show.InProduction = *u.InProduction
	}
	if u.Status != nil {
		show.Status = *u.Status
	}
	if u.OriginalLanguage != nil {
		show.OriginalLanguage = *u.OriginalLanguage
	}
	if u.OriginCountry != nil {
		show.OriginCountry = append([]string(nil), (*u.OriginCountry)...)
	}
	if u.CreatedBy != nil {
		show.CreatedBy = append([]string(nil), (*u.CreatedBy)...)
	}
	if u.FirstAirDate != nil {
		show.FirstAirDate = *u.FirstAirDate
	}
	if u.LastAirDate != nil {
		show.LastAirDate = *u.LastAirDate
	}
	if u.NumberOfEpisodes != nil {
		show.NumberOfEpisodes = *u.NumberOfEpisodes
	}
	if u.NumberOfSeasons != nil {
		show.NumberOfSeasons = *u.NumberOfSeasons
	}
	if u.ProductionCompanies != nil {
		show.ProductionCompanies = append([]string(nil), (*u.ProductionCompanies)...)
	}
	if u.PosterPath != nil {
		show.PosterPath = *u.PosterPath
	}
	if u.Genres != nil {
		show.Genres = append([]Genre(nil), (*u.Genres)...)
	}
	if u.VoteAverage != nil {
		show.VoteAverage = *u.VoteAverage
	}
	if u.VoteCount != nil {
		show.VoteCount = *u.VoteCount
	}
	if u.Popularity != nil {
		show.Popularity = *u.Popularity
	}
}

// Store persists shows.
type Store interface {
	FindByID(ctx context.Context, id string) (Show, error)
	FindByExternalID(ctx context.Context, externalID int64) (Show, error)
	FindMany(ctx context.Context, ids []string) ([]Show, error)
	List(ctx context.Context, skip, limit int) ([]Show, int, error)
	Create(ctx context.Context, show Show) (Show, error)
	Update(ctx context.Context, id string, upd ShowUpdate, updatedAt time.Time) (Show, error)
	DeleteByID(ctx context.Context, id string) error
}
