package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robalyx/chronicle/pkg/utils"
)

// ErrAttachmentTooLarge is returned when a download exceeds the fetcher's limit.
var ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

// HTTPFetcher downloads attachments from the Discord CDN.
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
	retry   utils.RetryOptions
}

// NewHTTPFetcher creates a fetcher that reads at most maxSize bytes per attachment.
func NewHTTPFetcher(timeout time.Duration, maxSize int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
		retry:   utils.GetAttachmentRetryOptions(),
	}
}

// Fetch downloads the body at url. Client errors are not retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return utils.WithRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, utils.Permanent(err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return nil, utils.Permanent(fmt.Errorf("%w: status %d", errFetchRejected, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: status %d", errFetchRejected, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
		if err != nil {
			return nil, err
		}

		if int64(len(data)) > f.maxSize {
			return nil, utils.Permanent(ErrAttachmentTooLarge)
		}

		return data, nil
	}, f.retry)
}

var errFetchRejected = errors.New("attachment download failed")
