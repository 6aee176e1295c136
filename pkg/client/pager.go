package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// Page is one response unit from a paginated endpoint: a bounded batch of
// records plus continuation metadata.
type Page struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Metadata *PageMetadata   `json:"metadata"`
}

// PageMetadata carries the server's continuation indicator.
type PageMetadata struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// Records returns the data payload split into individual records, preserving
// server order. The second result reports whether the payload was a JSON
// array; some endpoints return a single object under data.
func (p *Page) Records() ([]json.RawMessage, bool) {
	if len(p.Data) == 0 || string(p.Data) == "null" {
		return nil, true
	}

	var list []json.RawMessage
	if err := json.Unmarshal(p.Data, &list); err == nil {
		return list, true
	}

	// Single object under data
	return []json.RawMessage{p.Data}, false
}

// Pager traverses a paginated endpoint lazily, one page per Next call.
// Cursor state is scoped to this traversal; restarting requires a new Pager.
//
// Usage follows the scanner pattern:
//
//	it := gw.Paginate("company/employees", nil)
//	for it.Next(ctx) {
//	    page := it.Page()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Pager struct {
	gw       *Gateway
	endpoint string
	params   url.Values

	page      *Page
	err       error
	done      bool
	pagesSeen int
	fetched   int
}

// Paginate starts a lazy pagination traversal over a GET endpoint. The
// initial params are copied; limit and offset defaults are applied when the
// caller did not set them.
func (g *Gateway) Paginate(endpoint string, params url.Values) *Pager {
	copied := url.Values{}
	for key, values := range params {
		copied[key] = append([]string(nil), values...)
	}
	if copied.Get("limit") == "" {
		copied.Set("limit", strconv.Itoa(g.pageLimit))
	}
	if copied.Get("offset") == "" {
		copied.Set("offset", "0")
	}

	return &Pager{
		gw:       g,
		endpoint: endpoint,
		params:   copied,
	}
}

// Next fetches the next page. It returns false when the traversal is
// complete or a fetch failed; Err distinguishes the two.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	if p.pagesSeen >= p.gw.maxPages {
		p.gw.logger.Warn().
			Str("endpoint", p.endpoint).
			Int("max_pages", p.gw.maxPages).
			Msg("Reached pagination safety limit, data may be incomplete")
		p.done = true
		return false
	}

	page, err := p.gw.Request(ctx, "GET", p.endpoint, p.params)
	if err != nil {
		p.err = err
		return false
	}
	p.pagesSeen++

	records, isList := page.Records()
	if len(records) == 0 {
		p.done = true
		return false
	}
	p.fetched += len(records)

	p.gw.logger.Debug().
		Str("endpoint", p.endpoint).
		Int("page", p.pagesSeen).
		Int("records", len(records)).
		Int("total_fetched", p.fetched).
		Msg("Fetched page")

	// A single-object payload terminates the traversal after this page.
	if !isList {
		p.done = true
		p.page = page
		return true
	}

	p.advance(page)
	p.page = page
	return true
}

// advance updates cursor state from the page's continuation metadata,
// falling back to offset-based advancement when the server sends none.
func (p *Pager) advance(page *Page) {
	meta := page.Metadata
	if meta != nil && meta.CurrentPage > 0 {
		if meta.CurrentPage >= meta.TotalPages {
			p.done = true
			return
		}
		p.params.Set("page", strconv.Itoa(meta.CurrentPage+1))
		p.params.Set("offset", strconv.Itoa(p.fetched))
		return
	}

	p.params.Set("offset", strconv.Itoa(p.fetched))
}

// Page returns the page fetched by the last successful Next call.
func (p *Pager) Page() *Page {
	return p.page
}

// Err returns the error that terminated the traversal, if any.
func (p *Pager) Err() error {
	return p.err
}
