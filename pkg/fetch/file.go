package fetch

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
)

// FileFetcher resolves href/use targets against the local filesystem. It
// supports the empty scheme (bare paths) and the "file" scheme.
type FileFetcher struct{}

// NewFileFetcher constructs a FileFetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

func (f *FileFetcher) Supports(uri string) bool {
	s := scheme(uri)
	return s == "" || s == "file"
}

func (f *FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	start := time.Now()
	observability.Fetch().OnFetchStart(ctx, "file", uri)

	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		wrapped := errors.Wrap(errors.ErrCodeResourceFetch, err, "read file %s", path)
		observability.Fetch().OnFetchError(ctx, "file", uri, wrapped)
		return nil, wrapped
	}
	observability.Fetch().OnFetchComplete(ctx, "file", uri, len(data), time.Since(start))
	return data, nil
}
