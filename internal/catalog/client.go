// Package catalog is a typed client for the remote dog-adoption catalog API.
//
// Every operation is a single network round-trip. Failures never panic past
// the client: each call returns a neutral value (empty slice, zero result,
// nil match) together with the error, and logs the failure at warn level.
// Callers that only care about data can ignore the error.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/dogmatch/internal/domain"
)

// DefaultBaseURL is the upstream catalog host.
const DefaultBaseURL = "https://frontend-take-home-service.fetch.com"

// Options configures a Client.
type Options struct {
	// BaseURL is the catalog root. It may carry a path prefix, e.g. a local
	// forwarding proxy at http://localhost:5000/api.
	BaseURL string
	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration
	// HTTPClient overrides the transport. A cookie jar is attached when it has none.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o *Options) defaults() {
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client issues requests against the catalog. The upstream login sets an
// access cookie; the client's cookie jar replays it on every later call, so
// one Client corresponds to one signed-in user.
type Client struct {
	base *url.URL
	hc   *http.Client
	log  *slog.Logger
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	opts.defaults()

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, domain.NewAppError(domain.CodeValidation, "invalid catalog base url", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, domain.NewAppError(domain.CodeValidation,
			fmt.Sprintf("invalid catalog base url %q: must be an absolute http(s) url", opts.BaseURL), nil)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	var hc *http.Client
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		if clone.Jar == nil {
			clone.Jar = jar
		}
		hc = &clone
	} else {
		hc = &http.Client{Timeout: opts.Timeout, Jar: jar}
	}

	return &Client{
		base: base,
		hc:   hc,
		log:  opts.Logger.With(slog.String("component", "catalog")),
	}, nil
}

// BaseURL returns the catalog root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Login posts the user's name and email. The response body is not parsed;
// success only means the upstream accepted the login and set its cookie.
func (c *Client) Login(ctx context.Context, name, email string) error {
	body := map[string]string{"name": name, "email": email}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, nil); err != nil {
		c.fail(ctx, "login", err)
		return err
	}
	return nil
}

// Logout ends the upstream session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
		c.fail(ctx, "logout", err)
		return err
	}
	return nil
}

// ListBreeds returns every breed name known to the catalog.
func (c *Client) ListBreeds(ctx context.Context) ([]string, error) {
	var breeds []string
	if err := c.do(ctx, http.MethodGet, "/dogs/breeds", nil, nil, &breeds); err != nil {
		c.fail(ctx, "list breeds", err)
		return []string{}, err
	}
	if breeds == nil {
		breeds = []string{}
	}
	return breeds, nil
}

// Search runs a paged search. cursor is the opaque "from" token of a previous
// result; empty means the first page. On failure the result is empty, which
// callers cannot tell apart from "no matches" without looking at the error.
func (c *Client) Search(ctx context.Context, criteria domain.FilterCriteria, size int, cursor string) (domain.SearchResult, error) {
	var res domain.SearchResult
	if err := c.do(ctx, http.MethodGet, "/dogs/search", searchQuery(criteria, size, cursor), nil, &res); err != nil {
		c.fail(ctx, "search", err)
		return domain.SearchResult{IDs: []string{}}, err
	}
	if res.IDs == nil {
		res.IDs = []string{}
	}
	return res, nil
}

// FetchRecords resolves dog ids to records in one bulk request. The upstream
// returns records in request order. An empty input makes no request.
func (c *Client) FetchRecords(ctx context.Context, ids []string) ([]domain.Dog, error) {
	if len(ids) == 0 {
		return []domain.Dog{}, nil
	}
	var dogs []domain.Dog
	if err := c.do(ctx, http.MethodPost, "/dogs", nil, ids, &dogs); err != nil {
		c.fail(ctx, "fetch records", err, slog.Int("ids", len(ids)))
		return []domain.Dog{}, err
	}
	if dogs == nil {
		dogs = []domain.Dog{}
	}
	return dogs, nil
}

// FetchLocations resolves ZIP codes to locations. The upstream rejects more
// than MaxLocationBatch codes per call; chunking is the caller's job.
func (c *Client) FetchLocations(ctx context.Context, zipCodes []string) ([]domain.Location, error) {
	if len(zipCodes) == 0 {
		return []domain.Location{}, nil
	}
	// Unknown ZIP codes come back as JSON null entries.
	var raw []*domain.Location
	if err := c.do(ctx, http.MethodPost, "/locations", nil, zipCodes, &raw); err != nil {
		c.fail(ctx, "fetch locations", err, slog.Int("zip_codes", len(zipCodes)))
		return []domain.Location{}, err
	}
	locations := make([]domain.Location, 0, len(raw))
	for _, loc := range raw {
		if loc != nil {
			locations = append(locations, *loc)
		}
	}
	return locations, nil
}

// MaxLocationBatch is the most ZIP codes the upstream accepts in one
// FetchLocations call.
const MaxLocationBatch = 100

// SearchLocations finds locations by city and/or states.
func (c *Client) SearchLocations(ctx context.Context, q domain.LocationQuery) (domain.LocationPage, error) {
	body := struct {
		City   string   `json:"city,omitempty"`
		States []string `json:"states,omitempty"`
	}{City: strings.TrimSpace(q.City), States: q.States}

	var page domain.LocationPage
	if err := c.do(ctx, http.MethodPost, "/locations/search", nil, body, &page); err != nil {
		c.fail(ctx, "search locations", err)
		return domain.LocationPage{Results: []domain.Location{}}, err
	}
	if page.Results == nil {
		page.Results = []domain.Location{}
	}
	return page, nil
}

// GenerateMatch asks the catalog to pick one dog among favoriteIDs.
// An empty input yields no match without a request. A nil match with a nil
// error means the catalog answered but chose nothing.
func (c *Client) GenerateMatch(ctx context.Context, favoriteIDs []string) (*domain.Match, error) {
	if len(favoriteIDs) == 0 {
		return nil, nil
	}
	var m *domain.Match
	if err := c.do(ctx, http.MethodPost, "/dogs/match", nil, favoriteIDs, &m); err != nil {
		c.fail(ctx, "generate match", err, slog.Int("favorites", len(favoriteIDs)))
		return nil, err
	}
	if m == nil || m.Match == "" {
		return nil, nil
	}
	return m, nil
}

// Cookies returns the cookies the jar holds for the catalog host.
func (c *Client) Cookies() []*http.Cookie {
	if c.hc.Jar == nil {
		return nil
	}
	return c.hc.Jar.Cookies(c.base)
}

// SetCookies restores previously saved catalog cookies into the jar.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if c.hc.Jar == nil || len(cookies) == 0 {
		return
	}
	c.hc.Jar.SetCookies(c.base, cookies)
}

func searchQuery(criteria domain.FilterCriteria, size int, cursor string) url.Values {
	q := url.Values{}
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", criteria.SortSpec())
	if len(criteria.Breeds) > 0 {
		q.Set("breeds", strings.Join(criteria.Breeds, ","))
	}
	if len(criteria.ZipCodes) > 0 {
		q.Set("zipCodes", strings.Join(criteria.ZipCodes, ","))
	}
	if criteria.AgeMin != nil {
		q.Set("ageMin", strconv.Itoa(*criteria.AgeMin))
	}
	if criteria.AgeMax != nil {
		q.Set("ageMax", strconv.Itoa(*criteria.AgeMax))
	}
	if cursor != "" {
		q.Set("from", cursor)
	}
	return q
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one JSON round-trip. out may be nil when the body is ignored.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return domain.NewAppError(domain.CodeInternal, "encode catalog request", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rdr)
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "build catalog request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.NewAppError(domain.CodeUpstream, "catalog request cancelled", err)
		}
		return domain.NewAppError(domain.CodeUpstream, "catalog unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		cause := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(slurp)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return domain.NewAppError(domain.CodeUnauthorized, "catalog rejected credentials", cause)
		}
		return domain.NewAppError(domain.CodeUpstream, "catalog request failed", cause)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewAppError(domain.CodeUpstream, "decode catalog response", err)
	}
	return nil
}

func (c *Client) fail(ctx context.Context, op string, err error, attrs ...any) {
	args := append([]any{slog.String("op", op), slog.Any("error", err)}, attrs...)
	c.log.WarnContext(ctx, "catalog call failed", args...)
}
