package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ImageFetcher downloads page images so they can be embedded in batch
// requests as data URLs.
type ImageFetcher struct {
	client  *http.Client
	retries uint
}

// NewImageFetcher creates a fetcher with the given timeout per request.
func NewImageFetcher(timeout time.Duration) *ImageFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ImageFetcher{
		client:  &http.Client{Timeout: timeout},
		retries: 3,
	}
}

// Fetch loads the image at url. Ingested pages carry file:// URLs and are
// read straight from disk; anything else goes over HTTP, where connection
// level failures are retried but HTTP error statuses are not, since the
// server answered.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read local image: %w", err)
		}
		return data, nil
	}

	var data []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := f.client.Do(req)
			if err != nil {
				if isConnectionError(err) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
			}

			data, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.retries),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	return data, nil
}

// FetchDataURL downloads the image and returns it as a base64 data URL.
func (f *ImageFetcher) FetchDataURL(ctx context.Context, url string) (string, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return DataURL(data), nil
}

// DataURL encodes image bytes as a data URL, sniffing the content type.
func DataURL(data []byte) string {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// isConnectionError reports whether the error is a transport level failure
// worth retrying (refused, reset, timeout, DNS). Anything the server actually
// answered is not retried here.
func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
