package mwapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/sdzerobot/sdzerobot/errors"
)

// APIError is an error returned by the API in the response body
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// IsAPIError reports whether err is an API error with one of the codes
func IsAPIError(err error, codes ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return len(codes) == 0
}

// Page is the current revision of a page
type Page struct {
	Title     string
	Text      string
	Timestamp time.Time
	Missing   bool
	// Aliases are the requested titles that resolved to this page through
	// title normalization or a redirect
	Aliases []string
}

// EditRequest is one action=edit call
type EditRequest struct {
	Title   string
	Text    string
	Summary string
	// BaseTimestamp enables edit conflict detection; zero disables it
	BaseTimestamp time.Time
	Bot           bool
	Minor         bool
	// NoCreate fails instead of creating a missing page
	NoCreate bool
}

// Namespace is one entry of siteinfo namespaces
type Namespace struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Canonical string `json:"canonical"`
}

// Namespaces maps namespace numbers to their definitions
type Namespaces map[int]Namespace

// Name returns the local name of a namespace, "" for the main namespace
func (n Namespaces) Name(id int) (string, bool) {
	ns, ok := n[id]
	if !ok {
		return "", false
	}
	return ns.Name, true
}

// Qualify returns "Name:title", or title for the main namespace
func (n Namespaces) Qualify(id int, title string) (string, bool) {
	name, ok := n.Name(id)
	if !ok {
		return "", false
	}
	title = strings.ReplaceAll(title, "_", " ")
	if name == "" {
		return title, true
	}
	return name + ":" + title, true
}
