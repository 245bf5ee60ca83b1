package model

import "strings"

// Field names a contact field the extraction engine can discover.
type Field string

const (
	FieldEmail     Field = "scraped_email"
	FieldLinkedIn  Field = "scraped_linkedin"
	FieldTwitter   Field = "scraped_twitter"
	FieldInstagram Field = "scraped_instagram"
	FieldYouTube   Field = "scraped_youtube"
	FieldFacebook  Field = "scraped_facebook"
	FieldBluesky   Field = "scraped_bluesky"
)

// AllFields lists every contact field in column order.
var AllFields = []Field{
	FieldEmail,
	FieldLinkedIn,
	FieldTwitter,
	FieldInstagram,
	FieldYouTube,
	FieldFacebook,
	FieldBluesky,
}

// Contact maps contact fields to discovered values. A missing key means the
// field was not found; values are never empty strings.
type Contact map[Field]string

// Merge applies found fields from other onto c. A later source overwrites an
// earlier one only when it produced a non-empty value.
func (c Contact) Merge(other Contact) {
	for k, v := range other {
		if v != "" {
			c[k] = v
		}
	}
}

// Get returns the value for a field and whether it was found.
func (c Contact) Get(f Field) (string, bool) {
	v, ok := c[f]
	return v, ok
}

// Stargazer holds the profile fields delivered by the GitHub listing and
// detail endpoints.
type Stargazer struct {
	Login           string `json:"login"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Bio             string `json:"bio"`
	Blog            string `json:"blog"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	TwitterUsername string `json:"twitter_username"`
	HTMLURL         string `json:"html_url"`
}

// EnrichedStargazer is a Stargazer in flight through the pipeline, plus the
// contact fields discovered so far. Exactly one goroutine owns an instance at
// any time; ownership transfers only through queue hand-off.
type EnrichedStargazer struct {
	Stargazer

	Contact      Contact `json:"contact"`
	DetailLoaded bool    `json:"detail_loaded"`
	RetryCount   int     `json:"retry_count"`
	LastErr      string  `json:"last_error,omitempty"`
}

// NewEnriched wraps a listing-level stargazer for processing.
func NewEnriched(s Stargazer) *EnrichedStargazer {
	return &EnrichedStargazer{
		Stargazer: s,
		Contact:   make(Contact),
	}
}

// ApplyDetail fills profile fields from a detail fetch.
func (e *EnrichedStargazer) ApplyDetail(d Stargazer) {
	if d.Name != "" {
		e.Name = d.Name
	}
	if d.Email != "" {
		e.Email = d.Email
	}
	if d.Bio != "" {
		e.Bio = d.Bio
	}
	if d.Blog != "" {
		e.Blog = d.Blog
	}
	if d.Company != "" {
		e.Company = d.Company
	}
	if d.Location != "" {
		e.Location = d.Location
	}
	if d.TwitterUsername != "" {
		e.TwitterUsername = d.TwitterUsername
	}
	if d.HTMLURL != "" {
		e.HTMLURL = d.HTMLURL
	}
	e.DetailLoaded = true
}

// DocumentURLs returns the document URLs to scrape for this stargazer, in
// processing order: the personal website first, then the GitHub profile page.
func (e *EnrichedStargazer) DocumentURLs() []string {
	var urls []string
	if blog := strings.TrimSpace(e.Blog); blog != "" {
		urls = append(urls, blog)
	}
	if e.HTMLURL != "" {
		urls = append(urls, e.HTMLURL)
	}
	return urls
}

// RunSummary reports the outcome of a pipeline run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Repo      string `json:"repo"`
	Processed int64  `json:"processed"`
	Abandoned int64  `json:"abandoned"`
	Skipped   int64  `json:"skipped"`
	Dropped   int64  `json:"dropped"`
	Flushed   int64  `json:"flushed"`
	Fatal     bool   `json:"fatal,omitempty"`
}
