package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// Collector walks a page/per_page paginated JSON listing.
type Collector struct {
	fetcher    *Fetcher
	headers    map[string]string
	itemsField string
	accept     func(json.RawMessage) bool
	logger     *slog.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithHeaders sets headers sent with every page request.
func WithHeaders(h map[string]string) CollectorOption {
	return func(c *Collector) {
		c.headers = h
	}
}

// WithItemsField decodes pages as objects and reads items from the named
// array field, e.g. "items" for search results.
func WithItemsField(field string) CollectorOption {
	return func(c *Collector) {
		c.itemsField = field
	}
}

// WithAccept keeps only the items for which accept returns true. Rejected
// items do not count toward the limit, so paging continues past them.
func WithAccept(accept func(json.RawMessage) bool) CollectorOption {
	return func(c *Collector) {
		c.accept = accept
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a Collector issuing requests through f.
func NewCollector(f *Fetcher, opts ...CollectorOption) *Collector {
	c := &Collector{
		fetcher: f,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectAll requests pages 1, 2, ... of baseURL with per_page=pageSize and
// concatenates their items. It stops on an empty page, a short page, a Link
// header without a next relation, or when limit (if > 0) items are held.
// On failure the items gathered so far are returned along with the error.
func (c *Collector) CollectAll(ctx context.Context, baseURL string, pageSize, limit int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	var items []json.RawMessage
	for page := 1; ; page++ {
		u, err := pageURL(baseURL, page, pageSize)
		if err != nil {
			return items, err
		}

		resp, err := c.fetcher.Fetch(ctx, u, c.headers)
		if err != nil {
			return items, fmt.Errorf("collect page %d: %w", page, err)
		}
		if err := resp.Err(); err != nil {
			return items, fmt.Errorf("collect page %d: %w", page, err)
		}

		pageItems, err := c.decode(resp.Body)
		if err != nil {
			return items, fmt.Errorf("decode page %d of %s: %w", page, baseURL, err)
		}
		if len(pageItems) == 0 {
			break
		}

		items = append(items, c.filter(pageItems)...)
		if limit > 0 && len(items) >= limit {
			items = items[:limit]
			break
		}
		if len(pageItems) < pageSize {
			break
		}
		if link := resp.Header.Get("Link"); link != "" && !hasNextLink(link) {
			break
		}
	}

	c.logger.Debug("Collected listing", "url", baseURL, "items", len(items))
	return items, nil
}

func (c *Collector) filter(page []json.RawMessage) []json.RawMessage {
	if c.accept == nil {
		return page
	}
	kept := page[:0:0]
	for _, item := range page {
		if c.accept(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

func (c *Collector) decode(body []byte) ([]json.RawMessage, error) {
	// 204 No Content and similar empty bodies are an empty page.
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if c.itemsField == "" {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	raw, ok := obj[c.itemsField]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("field %s: %w", c.itemsField, err)
	}
	return items, nil
}

// pageURL sets page and per_page on baseURL, keeping its other parameters.
func pageURL(baseURL string, page, pageSize int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", baseURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// hasNextLink reports whether an RFC 8288 Link header carries rel="next".
func hasNextLink(header string) bool {
	for _, link := range strings.Split(header, ",") {
		for _, param := range strings.Split(link, ";")[1:] {
			param = strings.TrimSpace(param)
			key, value, ok := strings.Cut(param, "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(value, `"`)) {
				if strings.EqualFold(rel, "next") {
					return true
				}
			}
		}
	}
	return false
}
