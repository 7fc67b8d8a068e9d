// Package github acquires repository metadata and README text from the
// GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/c360studio/repograph/fetch"
	"github.com/c360studio/repograph/readme"
)

// DefaultBaseURL is the public GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

// APIVersion is sent in the X-GitHub-Api-Version header.
const APIVersion = "2022-11-28"

// PageSize is the per_page value used for every listing.
const PageSize = 100

// DefaultSearchQuery selects every repository with at least two stars.
const DefaultSearchQuery = "stars:>1"

// Client talks to the GitHub REST API.
type Client struct {
	fetcher   *fetch.Fetcher
	baseURL   string
	token     string
	converter *readme.Converter
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, e.g. for GitHub Enterprise or tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConverter sets the README converter.
func WithConverter(conv *readme.Converter) ClientOption {
	return func(c *Client) {
		c.converter = conv
	}
}

// NewClient creates a client that authenticates with token and issues all
// requests through f.
func NewClient(f *fetch.Fetcher, token string, opts ...ClientOption) *Client {
	c := &Client{
		fetcher: f,
		baseURL: DefaultBaseURL,
		token:   token,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.converter == nil {
		c.converter = readme.NewConverter()
	}
	return c
}

// headers returns the request headers for every API call.
func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": APIVersion,
	}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// rawContentHost serves README bodies for github.com repositories.
const rawContentHost = "raw.githubusercontent.com"

// downloadHeaders returns the headers for a README download. The token is
// only sent to the API host and the raw content host.
func (c *Client) downloadHeaders(rawURL string) map[string]string {
	h := c.headers()
	if !c.trustedHost(rawURL) {
		delete(h, "Authorization")
	}
	return h
}

func (c *Client) trustedHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Hostname(), rawContentHost) {
		return true
	}
	base, err := url.Parse(c.baseURL)
	return err == nil && strings.EqualFold(u.Host, base.Host)
}

func (c *Client) collector(opts ...fetch.CollectorOption) *fetch.Collector {
	opts = append([]fetch.CollectorOption{
		fetch.WithHeaders(c.headers()),
		fetch.WithCollectorLogger(c.logger),
	}, opts...)
	return fetch.NewCollector(c.fetcher, opts...)
}

// SearchTop returns up to limit repositories matching query, most starred
// first. A failure after some pages returns the refs gathered so far along
// with the error.
func (c *Client) SearchTop(ctx context.Context, query string, limit int) ([]Ref, error) {
	return c.search(ctx, query, limit, Filter{})
}

// search pages through results until limit repositories pass filter.
func (c *Client) search(ctx context.Context, query string, limit int, filter Filter) ([]Ref, error) {
	if query == "" {
		query = DefaultSearchQuery
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	searchURL := c.baseURL + "/search/repositories?" + q.Encode()

	accept := func(raw json.RawMessage) bool {
		var repo apiRepository
		if err := json.Unmarshal(raw, &repo); err != nil {
			// Undecodable items are reported below.
			return true
		}
		return filter.Allows(Ref{Owner: repo.Owner.Login, Name: repo.Name})
	}
	items, err := c.collector(fetch.WithItemsField("items"), fetch.WithAccept(accept)).CollectAll(ctx, searchURL, PageSize, limit)

	refs := make([]Ref, 0, len(items))
	for _, raw := range items {
		var repo apiRepository
		if decodeErr := json.Unmarshal(raw, &repo); decodeErr != nil {
			c.logger.Warn("Skipping undecodable search item", "error", decodeErr)
			continue
		}
		refs = append(refs, Ref{Owner: repo.Owner.Login, Name: repo.Name})
	}
	if err != nil {
		return refs, fmt.Errorf("search repositories: %w", err)
	}
	return refs, nil
}

// FetchRepository acquires metadata and README for one repository. Only a
// failure of the primary repository request is returned as an error; README,
// contributor, release and language failures degrade to empty or partial
// values and are logged.
func (c *Client) FetchRepository(ctx context.Context, owner, name string) (*Metadata, string, error) {
	repoURL := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(name))

	resp, err := c.fetcher.Fetch(ctx, repoURL, c.headers())
	if err != nil {
		return nil, "", fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}
	if err := resp.Err(); err != nil {
		return nil, "", fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}

	var repo apiRepository
	if err := json.Unmarshal(resp.Body, &repo); err != nil {
		return nil, "", fmt.Errorf("decode repository %s/%s: %w", owner, name, err)
	}

	md := &Metadata{
		Name:            name,
		Owner:           owner,
		Stars:           repo.StargazersCount,
		URL:             repo.HTMLURL,
		PrimaryLanguage: repo.Language,
		Description:     repo.Description,
		Topics:          nonNil(repo.Topics),
	}
	if md.URL == "" {
		md.URL = fmt.Sprintf("https://github.com/%s/%s", owner, name)
	}
	if md.Stars < 0 {
		md.Stars = 0
	}
	if repo.License != nil {
		md.License = repo.License.Name
	}

	text := c.fetchReadme(ctx, repoURL)
	md.Contributors = c.fetchContributors(ctx, repoURL)
	md.Releases = c.fetchReleases(ctx, repoURL)
	md.Languages = c.fetchLanguages(ctx, repoURL)

	return md, text, nil
}

// fetchReadme resolves the README through its download_url.
func (c *Client) fetchReadme(ctx context.Context, repoURL string) string {
	resp, err := c.fetcher.Fetch(ctx, repoURL+"/readme", c.headers())
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		c.logReadmeFailure(repoURL, "README lookup failed", err)
		return ""
	}

	var info apiReadme
	if err := json.Unmarshal(resp.Body, &info); err != nil || info.DownloadURL == "" {
		c.logger.Warn("README lookup returned no download URL", "repo", repoURL)
		return ""
	}

	dl, err := c.fetcher.Fetch(ctx, info.DownloadURL, c.downloadHeaders(info.DownloadURL))
	if err == nil {
		err = dl.Err()
	}
	if err != nil {
		c.logReadmeFailure(repoURL, "README download failed", err)
		return ""
	}

	text, err := c.converter.Normalize(info.Name, dl.Body)
	if err != nil {
		c.logger.Warn("README conversion failed, keeping raw body", "repo", repoURL, "file", info.Name, "error", err)
		return string(dl.Body)
	}
	return text
}

func (c *Client) logReadmeFailure(repoURL, msg string, err error) {
	// A missing README is routine; anything else is worth a warning.
	if fetch.StatusCode(err) == 404 {
		c.logger.Debug(msg, "repo", repoURL, "error", err)
		return
	}
	c.logger.Warn(msg, "repo", repoURL, "error", err)
}

func (c *Client) fetchContributors(ctx context.Context, repoURL string) []string {
	items, err := c.collector().CollectAll(ctx, repoURL+"/contributors", PageSize, 0)
	if err != nil {
		c.logger.Warn("Contributor listing incomplete", "repo", repoURL, "collected", len(items), "error", err)
	}

	seen := make(map[string]bool, len(items))
	logins := make([]string, 0, len(items))
	for _, raw := range items {
		var contributor apiContributor
		if json.Unmarshal(raw, &contributor) != nil || contributor.Login == "" || seen[contributor.Login] {
			continue
		}
		seen[contributor.Login] = true
		logins = append(logins, contributor.Login)
	}
	return logins
}

func (c *Client) fetchReleases(ctx context.Context, repoURL string) []string {
	items, err := c.collector().CollectAll(ctx, repoURL+"/releases", PageSize, 0)
	if err != nil {
		c.logger.Warn("Release listing incomplete", "repo", repoURL, "collected", len(items), "error", err)
	}

	tags := make([]string, 0, len(items))
	for _, raw := range items {
		var release apiRelease
		if json.Unmarshal(raw, &release) != nil || release.TagName == "" {
			continue
		}
		tags = append(tags, release.TagName)
	}
	return tags
}

// fetchLanguages returns the language names of the byte breakdown, sorted.
func (c *Client) fetchLanguages(ctx context.Context, repoURL string) []string {
	resp, err := c.fetcher.Fetch(ctx, repoURL+"/languages", c.headers())
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		c.logger.Warn("Language breakdown unavailable", "repo", repoURL, "error", err)
		return []string{}
	}

	var breakdown map[string]int64
	if err := json.Unmarshal(resp.Body, &breakdown); err != nil {
		c.logger.Warn("Language breakdown undecodable", "repo", repoURL, "error", err)
		return []string{}
	}

	langs := make([]string, 0, len(breakdown))
	for lang := range breakdown {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// ErrNoRepositories is returned when neither search nor configuration yield
// any repository to process.
var ErrNoRepositories = errors.New("no repositories selected")

// Resolve returns the repositories to process: the explicit list when given,
// otherwise the top search results. The filter applies to both. Search keeps
// paging past filtered-out results, so limit counts selected repositories.
func (c *Client) Resolve(ctx context.Context, explicit []string, query string, limit int, filter Filter) ([]Ref, error) {
	var refs []Ref
	if len(explicit) > 0 {
		for _, s := range explicit {
			ref, err := ParseRef(s)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	} else {
		found, err := c.search(ctx, query, limit, filter)
		if err != nil {
			if len(found) == 0 {
				return nil, err
			}
			c.logger.Warn("Search ended early, continuing with partial results", "found", len(found), "error", err)
		}
		refs = found
	}

	refs = filter.Apply(refs)
	if len(refs) == 0 {
		return nil, ErrNoRepositories
	}
	return refs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
