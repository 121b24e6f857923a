// Package fetch resolves href and use targets referenced by the hydration
// engine into raw bytes. A Fetcher is chosen by URI scheme; Composite
// dispatches to the first registered Fetcher that claims a given URI.
package fetch

import (
	"context"
	"net/url"

	"github.com/thuduc/fan-out-fan-in/pkg/errors"
)

// Fetcher resolves a URI to its raw bytes. Implementations must be safe for
// concurrent use: the hydration engine may fetch sibling nodes independently.
type Fetcher interface {
	// Supports reports whether this Fetcher can handle the given URI.
	Supports(uri string) bool

	// Fetch retrieves the raw bytes at uri. Returns an *errors.Error with
	// code ErrCodeResourceFetch on any failure.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Composite dispatches to the first registered Fetcher whose Supports
// returns true, in registration order.
type Composite struct {
	fetchers []Fetcher
}

// NewComposite builds a Composite from the given fetchers, tried in order.
func NewComposite(fetchers ...Fetcher) *Composite {
	return &Composite{fetchers: fetchers}
}

// Register appends an additional fetcher, tried after those already present.
func (c *Composite) Register(f Fetcher) {
	c.fetchers = append(c.fetchers, f)
}

func (c *Composite) Supports(uri string) bool {
	for _, f := range c.fetchers {
		if f.Supports(uri) {
			return true
		}
	}
	return false
}

func (c *Composite) Fetch(ctx context.Context, uri string) ([]byte, error) {
	for _, f := range c.fetchers {
		if f.Supports(uri) {
			return f.Fetch(ctx, uri)
		}
	}
	return nil, errors.New(errors.ErrCodeResourceFetch, "no fetcher registered for %s", uri)
}

// scheme extracts the URI scheme, treating a bare path (no "://") as the
// empty scheme used by file references.
func scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Scheme
}
