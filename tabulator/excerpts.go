package tabulator

import (
	"context"

	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// PageFetcher loads the current text of many pages at once
type PageFetcher interface {
	Pages(ctx context.Context, titles []string) ([]mwapi.Page, error)
}

// WikiExcerpts builds excerpts from page wikitext
type WikiExcerpts struct {
	pages PageFetcher
}

// NewWikiExcerpts creates an excerpt source reading pages through pages
func NewWikiExcerpts(pages PageFetcher) *WikiExcerpts {
	return &WikiExcerpts{pages: pages}
}

// Excerpts returns an excerpt per title. A redirect's excerpt is that of its
// target and is keyed by every requested title that led there. Missing pages
// are left out.
func (e *WikiExcerpts) Excerpts(ctx context.Context, titles []string, soft, hard int) (map[string]string, error) {
	pages, err := e.pages.Pages(ctx, titles)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(pages))
	for _, p := range pages {
		if p.Missing {
			continue
		}
		text := wikitext.Extract(p.Text, soft, hard)
		out[p.Title] = text
		for _, alias := range p.Aliases {
			out[alias] = text
		}
	}
	return out, nil
}
