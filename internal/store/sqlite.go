package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists rows to a SQLite database using modernc.org/sqlite.
// Write replaces the table contents inside a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stargazers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	login         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	github_email  TEXT NOT NULL DEFAULT '',
	scraped_email TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	twitter       TEXT NOT NULL DEFAULT '',
	linkedin      TEXT NOT NULL DEFAULT '',
	instagram     TEXT NOT NULL DEFAULT '',
	youtube       TEXT NOT NULL DEFAULT '',
	facebook      TEXT NOT NULL DEFAULT '',
	bluesky       TEXT NOT NULL DEFAULT '',
	profile_url   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT ''
);
`

// NewSQLite opens (and migrates) a SQLite store at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "store: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT login, name, github_email, scraped_email, website, company,
		       location, twitter, linkedin, instagram, youtube, facebook,
		       bluesky, profile_url, error
		FROM stargazers ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: select stargazers")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.Login, &r.Name, &r.GitHubEmail, &r.ScrapedEmail, &r.Website,
			&r.Company, &r.Location, &r.Twitter, &r.LinkedIn, &r.Instagram,
			&r.YouTube, &r.Facebook, &r.Bluesky, &r.ProfileURL, &r.Error,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate rows")
	}

	return newSnapshot(out), nil
}

func (s *SQLiteStore) Write(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stargazers`); err != nil {
		return eris.Wrap(err, "store: clear stargazers")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stargazers (
			login, name, github_email, scraped_email, website, company,
			location, twitter, linkedin, instagram, youtube, facebook,
			bluesky, profile_url, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "store: prepare insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Login, r.Name, r.GitHubEmail, r.ScrapedEmail, r.Website,
			r.Company, r.Location, r.Twitter, r.LinkedIn, r.Instagram,
			r.YouTube, r.Facebook, r.Bluesky, r.ProfileURL, r.Error,
		); err != nil {
			return eris.Wrapf(err, "store: insert %s", r.Login)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
