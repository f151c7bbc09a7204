package mwapi

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sdzerobot/sdzerobot/errors"
)

// maxTitlesPerQuery is the titles= limit for accounts without apihighlimits
const maxTitlesPerQuery = 50

type titleMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type revisionsResponse struct {
	Query struct {
		Normalized []titleMapping `json:"normalized"`
		Redirects  []titleMapping `json:"redirects"`
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Invalid   bool   `json:"invalid"`
			Revisions []struct {
				Timestamp time.Time `json:"timestamp"`
				Slots     struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

// Page fetches the current wikitext of a page, following redirects
func (c *Client) Page(ctx context.Context, title string) (*Page, error) {
	pages, err := c.Pages(ctx, []string{title})
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 || pages[0].Missing {
		return nil, errors.NewNotFoundError("page %s", title)
	}
	return &pages[0], nil
}

// Pages fetches the current wikitext of several pages. Missing pages are
// returned with Missing set.
func (c *Client) Pages(ctx context.Context, titles []string) ([]Page, error) {
	var out []Page
	for start := 0; start < len(titles); start += maxTitlesPerQuery {
		end := start + maxTitlesPerQuery
		if end > len(titles) {
			end = len(titles)
		}
		batch, err := c.pages(ctx, titles[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) pages(ctx context.Context, titles []string) ([]Page, error) {
	params := url.Values{
		"action":    {"query"},
		"prop":      {"revisions"},
		"rvprop":    {"content|timestamp"},
		"rvslots":   {"main"},
		"titles":    {strings.Join(titles, "|")},
		"redirects": {"1"},
	}

	var resp revisionsResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, errors.Wrap(err, "query revisions")
	}

	aliases := resolveAliases(titles, resp.Query.Normalized, resp.Query.Redirects)

	pages := make([]Page, 0, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		page := Page{
			Title:   p.Title,
			Missing: p.Missing || p.Invalid,
			Aliases: aliases[p.Title],
		}
		if len(p.Revisions) > 0 {
			page.Text = p.Revisions[0].Slots.Main.Content
			page.Timestamp = p.Revisions[0].Timestamp
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// resolveAliases maps each resolved title to the requested titles that led
// to it. Normalization is applied before redirects, and a redirect chain is
// followed to its end as the API reports every hop.
func resolveAliases(requested []string, normalized, redirects []titleMapping) map[string][]string {
	next := make(map[string]string, len(normalized)+len(redirects))
	for _, m := range normalized {
		next[m.From] = m.To
	}
	for _, m := range redirects {
		if _, ok := next[m.From]; !ok {
			next[m.From] = m.To
		}
	}

	out := map[string][]string{}
	seen := map[string]bool{}
	for _, title := range requested {
		final := title
		for hops := 0; hops <= len(next); hops++ {
			to, ok := next[final]
			if !ok || to == final {
				break
			}
			final = to
		}
		if final == title || seen[title] {
			continue
		}
		seen[title] = true
		out[final] = append(out[final], title)
	}
	return out
}

type embeddedInResponse struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		EmbeddedIn []struct {
			Title string `json:"title"`
		} `json:"embeddedin"`
	} `json:"query"`
}

// EmbeddedIn lists the pages that transclude title, optionally limited to
// some namespaces
func (c *Client) EmbeddedIn(ctx context.Context, title string, namespaces []int) ([]string, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"embeddedin"},
		"eititle": {title},
		"eilimit": {"max"},
	}
	if len(namespaces) > 0 {
		ns := make([]string, len(namespaces))
		for i, n := range namespaces {
			ns[i] = strconv.Itoa(n)
		}
		params.Set("einamespace", strings.Join(ns, "|"))
	}

	var titles []string
	for {
		var resp embeddedInResponse
		if err := c.get(ctx, cloneValues(params), &resp); err != nil {
			return nil, errors.Wrapf(err, "list pages embedding %s", title)
		}
		for _, p := range resp.Query.EmbeddedIn {
			titles = append(titles, p.Title)
		}
		if len(resp.Continue) == 0 {
			return titles, nil
		}
		for k, v := range resp.Continue {
			params.Set(k, v)
		}
	}
}

type siteinfoResponse struct {
	Query struct {
		Namespaces map[string]Namespace `json:"namespaces"`
	} `json:"query"`
}

// Namespaces returns the wiki's namespaces. The first result is cached for
// the life of the client.
func (c *Client) Namespaces(ctx context.Context) (Namespaces, error) {
	c.mu.Lock()
	cached := c.namespaces
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	params := url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"siprop": {"namespaces"},
	}
	var resp siteinfoResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, errors.Wrap(err, "query siteinfo")
	}

	ns := make(Namespaces, len(resp.Query.Namespaces))
	for _, n := range resp.Query.Namespaces {
		ns[n.ID] = n
	}

	c.mu.Lock()
	c.namespaces = ns
	c.mu.Unlock()
	return ns, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

