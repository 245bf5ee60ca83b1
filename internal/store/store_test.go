package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starreach/starreach-cli/internal/model"
)

func TestFromStargazer(t *testing.T) {
	t.Parallel()

	e := model.NewEnriched(model.Stargazer{
		Login:    "bob",
		Name:     "Bob",
		Email:    "bob@github.example",
		Blog:     "bob.dev",
		Location: "Lisbon",
		HTMLURL:  "https://github.com/bob",
	})
	e.Contact[model.FieldEmail] = "bob@x.com"
	e.Contact[model.FieldLinkedIn] = "https://www.linkedin.com/in/bob"

	row := FromStargazer(e)
	assert.Equal(t, "bob", row.Login)
	assert.Equal(t, "bob@github.example", row.GitHubEmail)
	assert.Equal(t, "bob@x.com", row.ScrapedEmail)
	assert.Equal(t, "https://www.linkedin.com/in/bob", row.LinkedIn)
	assert.Equal(t, "https://github.com/bob", row.ProfileURL)
	assert.Empty(t, row.Error)
}

func TestFromStargazer_TwitterFallsBackToProfileField(t *testing.T) {
	t.Parallel()

	e := model.NewEnriched(model.Stargazer{Login: "carol", TwitterUsername: "carol_dev"})
	row := FromStargazer(e)
	assert.Equal(t, "https://x.com/carol_dev", row.Twitter)

	// Scraped value wins over the profile field.
	e.Contact[model.FieldTwitter] = "https://x.com/carol_alt"
	row = FromStargazer(e)
	assert.Equal(t, "https://x.com/carol_alt", row.Twitter)
}

func TestFromStargazer_AbandonedCarriesError(t *testing.T) {
	t.Parallel()

	e := model.NewEnriched(model.Stargazer{Login: "dave"})
	e.LastErr = "render https://dave.dev: timeout"
	row := FromStargazer(e)
	assert.Equal(t, "render https://dave.dev: timeout", row.Error)
}

func TestRowValuesRoundTrip(t *testing.T) {
	t.Parallel()

	row := Row{
		Login: "alice", Name: "Alice", GitHubEmail: "a@gh", ScrapedEmail: "a@x",
		Website: "alice.dev", Company: "ACME", Location: "Berlin",
		Twitter: "https://x.com/alice", LinkedIn: "https://www.linkedin.com/in/alice",
		ProfileURL: "https://github.com/alice",
	}
	assert.Len(t, row.Values(), len(Header))
	assert.Equal(t, row, rowFromValues(row.Values()))
}

func TestRowFromValues_ShortRow(t *testing.T) {
	t.Parallel()

	row := rowFromValues([]string{"alice", "Alice"})
	assert.Equal(t, "alice", row.Login)
	assert.Equal(t, "Alice", row.Name)
	assert.Empty(t, row.Error)
}

func TestSnapshot_Has(t *testing.T) {
	t.Parallel()

	snap := newSnapshot([]Row{{Login: "alice"}, {Login: "bob"}})
	assert.True(t, snap.Has("alice"))
	assert.False(t, snap.Has("carol"))
	assert.Len(t, snap.Rows, 2)
}
