// Package webclient performs the blocking HTTP transfers of the resources
// manager: small catalog fetches and large container downloads.
package webclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gregjones/httpcache"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	ErrAborted          = errors.New("download aborted by caller")
)

// ProgressCallback reports transfer progress. total is -1 when the server
// does not announce a content length. Returning false aborts the transfer.
type ProgressCallback func(transferred, total int64) bool

// Client is the blocking transfer contract consumed by the manager.
type Client interface {
	// DownloadBytes fetches a small document into memory.
	DownloadBytes(ctx context.Context, url string) ([]byte, error)
	// DownloadToFile streams url into destPath, invoking progress (if not
	// nil) as data arrives. destPath is left absent on any failure.
	DownloadToFile(ctx context.Context, url, destPath string, progress ProgressCallback) error
}

// HTTPClient implements Client with a cached transport for catalog fetches
// and a retrying client for container downloads.
type HTTPClient struct {
	catalog  *http.Client
	download *retryablehttp.Client
}

func New() *HTTPClient {
	dl := retryablehttp.NewClient()
	dl.Logger = nil
	return &HTTPClient{
		catalog:  &http.Client{Transport: httpcache.NewMemoryCacheTransport()},
		download: dl,
	}
}

func (c *HTTPClient) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.catalog.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) DownloadToFile(ctx context.Context, url, destPath string, progress ProgressCallback) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0664)
	if err != nil {
		return err
	}
	err = copyWithProgress(f, resp.Body, resp.ContentLength, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destPath)
	}
	return err
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress ProgressCallback) error {
	if progress == nil {
		_, err := io.Copy(dst, src)
		return err
	}
	buf := make([]byte, 128*1024)
	var transferred int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			transferred += int64(n)
			if !progress(transferred, total) {
				return ErrAborted
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
