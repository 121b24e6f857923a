package fetch

import (
	"context"
	stderrors "errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/httputil"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
)

// s3Client is the subset of *s3.Client this package uses, so tests can
// substitute a fake without hitting the network.
type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher resolves "s3://bucket/key" href/use targets.
type S3Fetcher struct {
	client s3Client
}

// NewS3Fetcher builds an S3Fetcher using the default AWS config chain
// (environment, shared config, IMDS).
func NewS3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResourceFetch, err, "load AWS config")
	}
	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

// NewS3FetcherWithClient builds an S3Fetcher around a caller-supplied client,
// primarily for tests.
func NewS3FetcherWithClient(client s3Client) *S3Fetcher {
	return &S3Fetcher{client: client}
}

func (f *S3Fetcher) Supports(uri string) bool {
	return scheme(uri) == "s3"
}

// Fetch retries transient GetObject/body-read failures (network errors, 5xx,
// 429) with exponential backoff via httputil.RetryWithBackoff, for at most
// three attempts in total;
// permanent failures like a missing key return on the first attempt.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	start := time.Now()
	observability.Fetch().OnFetchStart(ctx, "s3", uri)

	bucket, key, err := parseS3URI(uri)
	if err != nil {
		observability.Fetch().OnFetchError(ctx, "s3", uri, err)
		return nil, err
	}

	var data []byte
	err = httputil.RetryWithBackoff(ctx, func() error {
		out, getErr := f.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if getErr != nil {
			if isTransientS3Error(getErr) {
				return httputil.Retryable(getErr)
			}
			return getErr
		}
		defer out.Body.Close()

		body, readErr := io.ReadAll(out.Body)
		if readErr != nil {
			return httputil.Retryable(readErr)
		}
		data = body
		return nil
	})
	if err != nil {
		wrapped := errors.Wrap(errors.ErrCodeResourceFetch, err, "get s3 object %s", uri)
		observability.Fetch().OnFetchError(ctx, "s3", uri, wrapped)
		return nil, wrapped
	}

	observability.Fetch().OnFetchComplete(ctx, "s3", uri, len(data), time.Since(start))
	return data, nil
}

// isTransientS3Error reports whether err looks like a network blip or a
// 5xx/429 response rather than a permanent failure like a missing bucket
// or key, which should not be retried.
func isTransientS3Error(err error) bool {
	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == 429 || status >= 500
	}
	var netErr interface{ Timeout() bool }
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func parseS3URI(uri string) (bucket, key string, err error) {
	u, parseErr := url.Parse(uri)
	if parseErr != nil {
		return "", "", errors.Wrap(errors.ErrCodeResourceFetch, parseErr, "parse s3 uri %s", uri)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New(errors.ErrCodeResourceFetch, "malformed s3 uri %s: need bucket and key", uri)
	}
	return bucket, key, nil
}
