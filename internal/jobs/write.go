package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/ozyab09/iptv/internal/log"
)

// writeBytes persists an artifact under dir atomically: temp file, fsync,
// rename. A crashed run never leaves a half-written playlist behind.
func writeBytes(ctx context.Context, dir, name string, data []byte) error {
	logger := log.FromContext(ctx)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, name)
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", name, err)
	}

	logger.Info().
		Str("path", path).
		Int("bytes", len(data)).
		Msg("artifact written")
	return nil
}

func writeText(ctx context.Context, dir, name, content string) error {
	return writeBytes(ctx, dir, name, []byte(content))
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
