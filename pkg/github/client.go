// Package github provides a client for the GitHub REST API, covering
// stargazer listing with Link-header pagination and user detail lookups.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/starreach/starreach-cli/internal/resilience"
)

// Client defines the GitHub operations the pipeline needs.
type Client interface {
	// FetchPage fetches one page of stargazers for a repository. An empty
	// cursor requests the first page. When the response carries a non-zero
	// Wait, the caller must sleep at least that long and retry the same
	// cursor; Users and NextCursor are empty in that case.
	FetchPage(ctx context.Context, repo Repo, cursor string) (*Page, error)
	// FetchUser fetches the full profile for a login.
	FetchUser(ctx context.Context, login string) (*User, error)
}

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoURL extracts owner and name from a repository URL or an
// "owner/name" shorthand.
func ParseRepoURL(raw string) (Repo, error) {
	trimmed := strings.TrimSuffix(strings.TrimRight(raw, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		owner := parts[len(parts)-2]
		name := parts[len(parts)-1]
		if owner != "" && name != "" && !strings.Contains(name, ".com") {
			return Repo{Owner: owner, Name: name}, nil
		}
	}
	return Repo{}, eris.Errorf("github: invalid repository URL: %s", raw)
}

// User is a GitHub user profile. Listing pages fill only Login and HTMLURL;
// the remaining fields come from FetchUser.
type User struct {
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

// Page is one page of stargazers. NextCursor is an opaque token (the URL of
// the next page); empty means the listing is exhausted. Wait is non-zero when
// the API rate limit was hit for this request.
type Page struct {
	Users      []User
	NextCursor string
	Wait       time.Duration
}

// Option configures the GitHub client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPerPage sets the page size for stargazer listings.
func WithPerPage(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithRequestsPerSecond sets the client-side pacing limit.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetryConfig overrides the per-request retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	token   string
	baseURL string
	perPage int
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a GitHub API client authenticated with token.
func NewClient(token string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("github", "request")

	c := &httpClient{
		token:   token,
		baseURL: "https://api.github.com",
		perPage: 100,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchPage(ctx context.Context, repo Repo, cursor string) (*Page, error) {
	reqURL := cursor
	if reqURL == "" {
		reqURL = fmt.Sprintf("%s/repos/%s/%s/stargazers?per_page=%d", c.baseURL, repo.Owner, repo.Name, c.perPage)
	}

	body, hdr, err := c.get(ctx, reqURL)
	if err != nil {
		if wait, ok := resilience.IsRateLimit(err); ok {
			return &Page{Wait: wait}, nil
		}
		return nil, eris.Wrapf(err, "github: fetch stargazers page for %s", repo)
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, eris.Wrapf(err, "github: decode stargazers page for %s", repo)
	}

	return &Page{
		Users:      users,
		NextCursor: nextLink(hdr.Get("Link")),
	}, nil
}

func (c *httpClient) FetchUser(ctx context.Context, login string) (*User, error) {
	body, _, err := c.get(ctx, fmt.Sprintf("%s/users/%s", c.baseURL, login))
	if err != nil {
		return nil, eris.Wrapf(err, "github: fetch user %s", login)
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, eris.Wrapf(err, "github: decode user %s", login)
	}
	return &u, nil
}

type response struct {
	body   []byte
	header http.Header
}

// get performs a paced, authenticated GET with bounded retries on transient
// failures. Rate-limit responses surface as RateLimitError without burning
// retry attempts; 4xx client errors surface as FatalError.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return response{}, eris.Wrap(err, "github: create request")
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if c.token != "" {
			req.Header.Set("Authorization", "token "+c.token)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return response{}, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return response{}, eris.Wrap(err, "github: read response body")
		}

		switch {
		case httpResp.StatusCode == http.StatusOK:
			return response{body: body, header: httpResp.Header}, nil
		case isRateLimited(httpResp):
			wait := rateLimitWait(httpResp.Header, time.Now())
			return response{}, resilience.NewRateLimitError(wait)
		case resilience.IsTransientHTTPStatus(httpResp.StatusCode):
			return response{}, resilience.NewTransientError(
				eris.Errorf("github: status %d: %s", httpResp.StatusCode, truncate(body)), httpResp.StatusCode)
		default:
			return response{}, resilience.NewFatalError(
				eris.Errorf("github: status %d: %s", httpResp.StatusCode, truncate(body)), httpResp.StatusCode)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.body, resp.header, nil
}

// isRateLimited reports whether a 403/429 response is a rate-limit rejection
// rather than a permission failure.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// rateLimitWait computes how long to wait before retrying:
// max(Retry-After, X-RateLimit-Reset - now + 1s), floor 0.
func rateLimitWait(h http.Header, now time.Time) time.Duration {
	var wait time.Duration

	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	}

	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			untilReset := time.Unix(unix, 0).Sub(now) + time.Second
			if untilReset > wait {
				wait = untilReset
			}
		}
	}

	if wait < 0 {
		wait = 0
	}
	return wait
}

// nextLink extracts the rel="next" URL from a Link header, or "" if absent.
func nextLink(link string) string {
	for part := range strings.SplitSeq(link, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) == `rel="next"` {
			return strings.Trim(strings.TrimSpace(section[0]), "<>")
		}
	}
	return ""
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
