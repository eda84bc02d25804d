// Package fetch retrieves playlist and EPG payloads over HTTP with a hard
// byte ceiling and transparent gzip/zip decompression.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/metrics"
)

// SizeError reports a payload that exceeded the configured byte ceiling.
// The transfer is aborted mid-stream; no truncated content is returned.
type SizeError struct {
	URL   string
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("payload exceeds maximum allowed size of %d bytes", e.Limit)
}

// Client downloads text payloads. The zero value is not usable; use New.
type Client struct {
	http *http.Client
}

// New returns a Client with a conservative overall timeout.
func New() *Client {
	return &Client{http: &http.Client{Timeout: 5 * time.Minute}}
}

// NewWithHTTPClient wires a caller-supplied HTTP client, used by tests.
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{http: hc}
}

// Text downloads url, enforcing maxBytes during streaming, decompresses
// gzip or zip wrapping and decodes the result as UTF-8 text. kind labels
// the payload for logging and metrics ("playlist" or "epg").
func (c *Client) Text(ctx context.Context, url string, maxBytes int64, kind string) (string, error) {
	logger := log.WithComponentFromContext(ctx, "fetch")
	logger.Info().
		Str("kind", kind).
		Str("url", log.MaskURL(url)).
		Msg("downloading")

	raw, err := c.download(ctx, url, maxBytes)
	if err != nil {
		metrics.RecordFetchFailure(kind)
		return "", err
	}
	metrics.AddFetchBytes(kind, len(raw))

	switch {
	case strings.HasSuffix(url, ".gz") || isGzipped(raw):
		logger.Info().Str("kind", kind).Msg("detected gzipped payload, decompressing")
		raw, err = gunzip(raw)
	case strings.HasSuffix(url, ".zip") || isZipped(raw):
		logger.Info().Str("kind", kind).Msg("detected zipped payload, extracting")
		raw, err = unzipFirst(raw)
	}
	if err != nil {
		metrics.RecordFetchFailure(kind)
		return "", err
	}

	logger.Info().
		Str("kind", kind).
		Int("bytes", len(raw)).
		Msg("download completed")
	return string(raw), nil
}

func (c *Client) download(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	// Read one byte past the limit so an exactly-at-limit payload passes
	// while an oversized one aborts mid-stream.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, &SizeError{URL: url, Limit: maxBytes}
	}
	return data, nil
}

func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func isZipped(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04})
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}

// unzipFirst extracts the first file from a zip archive.
func unzipFirst(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("zip: archive is empty")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	out, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	return out, nil
}
