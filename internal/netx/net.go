// Package netx fetches objects through presigned URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is the part of *http.Client Download needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient is used when Download is given a nil client.
var DefaultClient HTTPClient = http.DefaultClient

// Download GETs url and copies the body into w. Any status but 200 is an
// error carrying the start of the response body, which is where S3 puts its
// reason.
func Download(ctx context.Context, client HTTPClient, url string, w io.Writer) (int64, error) {
	if client == nil {
		client = DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	return n, nil
}
