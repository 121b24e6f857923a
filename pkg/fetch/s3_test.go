package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// fakeS3Client stands in for *s3.Client, returning queued responses/errors
// to each GetObject call in order so tests can script a transient failure
// followed by a success without hitting the network.
type fakeS3Client struct {
	calls int
	fn    func(call int) (*s3.GetObjectOutput, error)
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	call := f.calls
	f.calls++
	return f.fn(call)
}

func TestS3FetcherRetriesTransientFailureThenSucceeds(t *testing.T) {
	client := &fakeS3Client{fn: func(call int) (*s3.GetObjectOutput, error) {
		if call == 0 {
			return nil, &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 503}},
				Err:      fmt.Errorf("service unavailable"),
			}
		}
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("<schedule/>"))}, nil
	}}

	f := NewS3FetcherWithClient(client)
	data, err := f.Fetch(context.Background(), "s3://bucket/key")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "<schedule/>" {
		t.Errorf("Fetch data = %q, want %q", data, "<schedule/>")
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 (one failure, one retry)", client.calls)
	}
}

func TestS3FetcherDoesNotRetryPermanentFailure(t *testing.T) {
	client := &fakeS3Client{fn: func(call int) (*s3.GetObjectOutput, error) {
		return nil, fmt.Errorf("NoSuchKey: the specified key does not exist")
	}}

	f := NewS3FetcherWithClient(client)
	_, err := f.Fetch(context.Background(), "s3://bucket/missing-key")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for a permanent failure)", client.calls)
	}
}
