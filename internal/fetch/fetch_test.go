package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(srv.Client()), srv.URL
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipped(t *testing.T, name, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTextPlain(t *testing.T) {
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n"))
	})

	got, err := c.Text(context.Background(), url, 1024, "playlist")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", got)
}

func TestTextGzipByMagicBytes(t *testing.T) {
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gzipped(t, "<tv></tv>"))
	})

	got, err := c.Text(context.Background(), url, 1024, "epg")
	require.NoError(t, err)
	assert.Equal(t, "<tv></tv>", got)
}

func TestTextGzipBySuffix(t *testing.T) {
	c, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gzipped(t, "<tv></tv>"))
	})

	got, err := c.Text(context.Background(), base+"/epg.xml.gz", 1024, "epg")
	require.NoError(t, err)
	assert.Equal(t, "<tv></tv>", got)
}

func TestTextZip(t *testing.T) {
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(zipped(t, "epg.xml", "<tv></tv>"))
	})

	got, err := c.Text(context.Background(), url, 1024, "epg")
	require.NoError(t, err)
	assert.Equal(t, "<tv></tv>", got)
}

func TestTextOversizedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 100)
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})

	_, err := c.Text(context.Background(), url, 99, "playlist")
	require.Error(t, err)
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(99), sizeErr.Limit)
}

func TestTextExactlyAtLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 100)
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})

	got, err := c.Text(context.Background(), url, 100, "playlist")
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestTextNon200Status(t *testing.T) {
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := c.Text(context.Background(), url, 1024, "playlist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestTextCorruptGzipFails(t *testing.T) {
	c, url := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x1f, 0x8b, 0xde, 0xad, 0xbe, 0xef})
	})

	_, err := c.Text(context.Background(), url, 1024, "epg")
	require.Error(t, err)
}
