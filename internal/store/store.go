// Package store persists enriched stargazers to a durable tabular store.
// Two drivers exist: an XLSX workbook (default) and a SQLite database. The
// pipeline's Saver is the only writer during a run.
package store

import (
	"context"

	"github.com/starreach/starreach-cli/internal/model"
)

// Row is the store's tabular shape for one stargazer.
type Row struct {
	Login        string
	Name         string
	GitHubEmail  string
	ScrapedEmail string
	Website      string
	Company      string
	Location     string
	Twitter      string
	LinkedIn     string
	Instagram    string
	YouTube      string
	Facebook     string
	Bluesky      string
	ProfileURL   string
	Error        string
}

// Header is the column order shared by both drivers.
var Header = []string{
	"Username", "Name", "GitHub Email", "Scraped Email", "Website",
	"Company", "Location", "Twitter", "LinkedIn", "Instagram",
	"YouTube", "Facebook", "Bluesky", "GitHub Profile", "Error",
}

// Values returns the row's cells in Header order.
func (r Row) Values() []string {
	return []string{
		r.Login, r.Name, r.GitHubEmail, r.ScrapedEmail, r.Website,
		r.Company, r.Location, r.Twitter, r.LinkedIn, r.Instagram,
		r.YouTube, r.Facebook, r.Bluesky, r.ProfileURL, r.Error,
	}
}

func rowFromValues(cells []string) Row {
	get := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Row{
		Login:        get(0),
		Name:         get(1),
		GitHubEmail:  get(2),
		ScrapedEmail: get(3),
		Website:      get(4),
		Company:      get(5),
		Location:     get(6),
		Twitter:      get(7),
		LinkedIn:     get(8),
		Instagram:    get(9),
		YouTube:      get(10),
		Facebook:     get(11),
		Bluesky:      get(12),
		ProfileURL:   get(13),
		Error:        get(14),
	}
}

// FromStargazer converts a processed stargazer into the store's row shape.
func FromStargazer(e *model.EnrichedStargazer) Row {
	twitter := e.Contact[model.FieldTwitter]
	if twitter == "" && e.TwitterUsername != "" {
		twitter = "https://x.com/" + e.TwitterUsername
	}

	return Row{
		Login:        e.Login,
		Name:         e.Name,
		GitHubEmail:  e.Email,
		ScrapedEmail: e.Contact[model.FieldEmail],
		Website:      e.Blog,
		Company:      e.Company,
		Location:     e.Location,
		Twitter:      twitter,
		LinkedIn:     e.Contact[model.FieldLinkedIn],
		Instagram:    e.Contact[model.FieldInstagram],
		YouTube:      e.Contact[model.FieldYouTube],
		Facebook:     e.Contact[model.FieldFacebook],
		Bluesky:      e.Contact[model.FieldBluesky],
		ProfileURL:   e.HTMLURL,
		Error:        e.LastErr,
	}
}

// Snapshot is the persisted collection as of the last load: the rows in
// stored order plus the derived identity-key set.
type Snapshot struct {
	Rows []Row
	Keys map[string]struct{}
}

// Has reports whether an identity key is already persisted.
func (s *Snapshot) Has(login string) bool {
	_, ok := s.Keys[login]
	return ok
}

func newSnapshot(rows []Row) *Snapshot {
	keys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		keys[r.Login] = struct{}{}
	}
	return &Snapshot{Rows: rows, Keys: keys}
}

// Store defines the persistence interface for the pipeline.
type Store interface {
	// Load reads the current persisted state. A missing store is an empty
	// snapshot, not an error.
	Load(ctx context.Context) (*Snapshot, error)
	// Write atomically replaces the persisted state with rows. A crash
	// mid-write must never truncate previously persisted data.
	Write(ctx context.Context, rows []Row) error
	Close() error
}
