// Package jobs orchestrates one refresh cycle: fetch, filter, reduce,
// persist, upload.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ozyab09/iptv/internal/config"
	"github.com/ozyab09/iptv/internal/epg"
	"github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/metrics"
	"github.com/ozyab09/iptv/internal/playlist"
)

// Fetcher is the retrieval collaborator contract.
type Fetcher interface {
	Text(ctx context.Context, url string, maxBytes int64, kind string) (string, error)
}

// Uploader is the storage collaborator contract.
type Uploader interface {
	Put(ctx context.Context, bucket, key, contentType string, body []byte) error
}

// Status represents the outcome of the last refresh.
type Status struct {
	LastRun    time.Time `json:"last_run"`
	Channels   int       `json:"channels"`
	Programmes bool      `json:"epg_processed"`
	Error      string    `json:"error,omitempty"`
}

// Refresh runs the complete cycle. up may be nil, which forces dry-run
// behavior regardless of cfg.DryRun.
func Refresh(ctx context.Context, cfg config.Config, f Fetcher, up Uploader) (*Status, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")
	logger.Info().Str("event", "refresh.start").Msg("starting refresh")

	dryRun := cfg.DryRun || up == nil

	var playlistText, epgText string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		playlistText, err = f.Text(gctx, cfg.PlaylistURL, config.MaxPlaylistBytes, "playlist")
		if err != nil {
			return fmt.Errorf("playlist: %w", err)
		}
		return nil
	})
	if cfg.EPGURL != "" {
		g.Go(func() error {
			var err error
			epgText, err = f.Text(gctx, cfg.EPGURL, config.MaxEPGBytes, "epg")
			if err != nil {
				return fmt.Errorf("epg: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordRefreshFailure("fetch")
		return nil, err
	}

	epgRef := ""
	if cfg.EPGURL != "" {
		epgRef = cfg.EPGRef()
	}
	result := playlist.Filter(ctx, playlistText, playlist.Options{
		KeepCategories: cfg.KeepCategories,
		ExcludeNames:   cfg.ExcludeNames,
		EPGRef:         epgRef,
	})

	if err := writeText(ctx, cfg.OutputDir, cfg.PlaylistKey, result.Content); err != nil {
		metrics.RecordRefreshFailure("write")
		return nil, fmt.Errorf("write filtered playlist: %w", err)
	}
	if err := writeText(ctx, cfg.OutputDir, cfg.AllPlaylistKey(), playlistText); err != nil {
		metrics.RecordRefreshFailure("write")
		return nil, fmt.Errorf("write all-categories playlist: %w", err)
	}

	status := &Status{LastRun: time.Now(), Channels: playlist.Count(result.Content)}

	if cfg.EPGURL != "" {
		reduced, err := epg.Reduce(ctx, epgText, result.Channels, epg.Policy{
			PastRetentionDays:              cfg.PastRetentionDays,
			FutureRetentionDays:            cfg.FutureRetentionDays,
			ExcludedChannelFutureLimitDays: cfg.ExcludedChannelFutureLimitDays,
			ExcludedChannelPastLimitHours:  cfg.ExcludedChannelPastLimitHours,
			ExcludedCategories:             cfg.EPGExcludeCategories,
			ExcludedChannelIDs:             cfg.EPGExcludeChannelIDs,
		}, time.Now())
		if err != nil {
			metrics.RecordRefreshFailure("reduce")
			return nil, fmt.Errorf("reduce epg: %w", err)
		}

		artifact := []byte(reduced)
		contentType := "application/xml"
		if strings.HasSuffix(cfg.EPGKey, ".gz") {
			if artifact, err = gzipBytes(artifact); err != nil {
				metrics.RecordRefreshFailure("write")
				return nil, fmt.Errorf("compress epg: %w", err)
			}
			contentType = "application/gzip"
		}
		if err := writeBytes(ctx, cfg.OutputDir, cfg.FilteredEPGFile(), artifact); err != nil {
			metrics.RecordRefreshFailure("write")
			return nil, fmt.Errorf("write filtered epg: %w", err)
		}
		if !dryRun {
			if err := up.Put(ctx, cfg.Bucket, cfg.EPGKey, contentType, artifact); err != nil {
				metrics.RecordRefreshFailure("upload")
				return nil, err
			}
		}
		status.Programmes = true
	}

	if dryRun {
		logger.Info().Str("event", "refresh.dry_run").Msg("dry-run mode: files saved locally, skipping upload")
		return status, nil
	}

	const m3uContentType = "application/x-mpegurl"
	if err := up.Put(ctx, cfg.Bucket, cfg.PlaylistKey, m3uContentType, []byte(result.Content)); err != nil {
		metrics.RecordRefreshFailure("upload")
		return nil, err
	}
	if err := up.Put(ctx, cfg.Bucket, cfg.AllPlaylistKey(), m3uContentType, []byte(playlistText)); err != nil {
		metrics.RecordRefreshFailure("upload")
		return nil, err
	}

	logger.Info().
		Str("event", "refresh.success").
		Int("channels", status.Channels).
		Msg("refresh completed")
	return status, nil
}
