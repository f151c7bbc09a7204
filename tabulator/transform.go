package tabulator

import (
	"context"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Transformation rewrites the columns of a result set. The set of
// transformations is closed; newTransformations fixes their order.
type Transformation interface {
	// Name is the template parameter the transformation reads
	Name() string

	readConfig(t wikitext.Template, w *Warnings)
	// apply returns new rows; it never changes the row count
	apply(ctx context.Context, env *Env, rows []Row, w *Warnings) ([]Row, error)
	active() bool
}

// Namespaces resolves namespace numbers to their local names
type Namespaces interface {
	Name(id int) (string, bool)
}

// ExcerptSource fetches plain-text excerpts for namespace-qualified titles.
// Titles it cannot resolve are left out of the map.
type ExcerptSource interface {
	Excerpts(ctx context.Context, titles []string, soft, hard int) (map[string]string, error)
}

// Env carries what transformations need from the wiki
type Env struct {
	Namespaces       Namespaces
	Excerpts         ExcerptSource
	ExcerptBatchSize int
}

// newTransformations returns one of each transformation in application
// order. Excerpt and Wikilink read original column positions, so they run
// first; Hide runs last so every other index refers to unhidden columns.
func newTransformations() []Transformation {
	return []Transformation{
		&Excerpt{},
		&Wikilink{},
		&Comment{},
		&Underscores{},
		&Hide{},
	}
}

// applyAll runs every configured transformation in order
func applyAll(ctx context.Context, env *Env, ts []Transformation, rows []Row, w *Warnings) ([]Row, error) {
	for _, t := range ts {
		if !t.active() {
			continue
		}
		next, err := t.apply(ctx, env, rows, w)
		if err != nil {
			return nil, err
		}
		rows = next
	}
	return rows, nil
}

// qualify builds "Namespace:Title" from a namespace number and a title as
// stored in the database
func qualify(env *Env, ns int, title string) (string, bool) {
	title = spaces(title)
	if ns == 0 {
		return title, true
	}
	if env == nil || env.Namespaces == nil {
		return "", false
	}
	name, ok := env.Namespaces.Name(ns)
	if !ok {
		return "", false
	}
	return name + ":" + title, true
}
