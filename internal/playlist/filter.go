package playlist

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/metrics"
)

// Lines beyond this length are dropped rather than parsed.
const maxLineLength = 10000

var (
	regionalRe    = regexp.MustCompile(`(?i)\s\+\d+(?:\s+HD)?(?:\s*\([^)]+\))?\s*$`)
	trailingNumRe = regexp.MustCompile(`\s\d{2,}$`)
)

// Options configures a Filter run.
type Options struct {
	// KeepCategories lists the group-title values to retain. Empty keeps
	// every category.
	KeepCategories []string
	// ExcludeNames drops entries whose display name contains any of these
	// substrings, case-insensitively.
	ExcludeNames []string
	// EPGRef, when set, replaces or appends the url-tvg attribute on the
	// playlist header.
	EPGRef string
}

// Result is the outcome of a Filter run.
type Result struct {
	Content  string
	Channels Retained
}

// Filter applies the gate pipeline and duplicate resolution to raw M3U
// content. The input is never mutated; the output contains the (possibly
// rewritten) header followed by the surviving entries in original relative
// order, with duplicate groups collapsed to a single representative.
func Filter(ctx context.Context, content string, opts Options) Result {
	logger := log.WithComponentFromContext(ctx, "playlist")
	logger.Info().Str("event", "filter.start").Msg("starting playlist filtering")

	keep := lowerAll(opts.KeepCategories)
	exclude := lowerAll(opts.ExcludeNames)

	lines := strings.Split(content, "\n")
	hasExtinf := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#EXTINF:") {
			hasExtinf = true
			break
		}
	}

	var kept []string
	include := false

	for i, line := range lines {
		if len(line) > maxLineLength {
			logger.Warn().
				Int("line", i).
				Int("length", len(line)).
				Msg("skipping extremely long line")
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#EXTM3U"):
			kept = append(kept, rewriteHeader(line, opts.EPGRef))

		case strings.HasPrefix(trimmed, "#EXTINF:"):
			entry := Entry{Extinf: line}
			include = includeEntry(entry, keep, exclude, logger)
			if include {
				kept = append(kept, entry.withName(stripOrigSuffix(entry.Name())))
			}

		case strings.HasPrefix(trimmed, "http"):
			if !hasExtinf {
				if len(keep) == 0 {
					kept = append(kept, line)
				}
			} else if include {
				kept = append(kept, line)
			}

		case include:
			kept = append(kept, line)

		case trimmed == "":
			kept = append(kept, line)

		case !hasExtinf:
			kept = append(kept, line)
		}
	}

	header, entries := splitEntries(kept, logger)
	entries = dedupe(entries, logger)

	out := make([]string, 0, len(header)+2*len(entries))
	out = append(out, header...)
	for _, e := range entries {
		out = append(out, e.Extinf, e.URL)
	}

	result := Result{
		Content:  strings.Join(out, "\n"),
		Channels: Channels(entries),
	}

	metrics.SetPlaylistChannels("input", countEntries(lines))
	metrics.SetPlaylistChannels("filtered", len(entries))
	logger.Info().
		Str("event", "filter.done").
		Int("channels_in", countEntries(lines)).
		Int("channels_out", len(entries)).
		Msg("playlist filtering completed")

	return result
}

// includeEntry runs the per-entry gates in order: category, name exclusion,
// regional variant, trailing enumeration.
func includeEntry(e Entry, keep, exclude []string, logger zerolog.Logger) bool {
	include := len(keep) == 0
	if !include {
		group := strings.ToLower(e.Group())
		for _, cat := range keep {
			if cat == group {
				include = true
				break
			}
		}
	}
	if !include {
		return false
	}

	name := e.Name()
	lower := strings.ToLower(name)
	for _, pattern := range exclude {
		if strings.Contains(lower, pattern) {
			logger.Debug().
				Str("channel", name).
				Str("pattern", pattern).
				Msg("excluding channel by name pattern")
			return false
		}
	}

	// Timezone-shifted re-broadcasts: "+1 (Приволжье)", "+4 HD" and the like.
	if regionalRe.MatchString(name) {
		logger.Debug().Str("channel", name).Msg("excluding regional variant")
		return false
	}

	// Enumerated variants without the "+N" marker: "Channel 25", "HD 50".
	if trailingNumRe.MatchString(name) {
		logger.Debug().Str("channel", name).Msg("excluding channel ending with numbers")
		return false
	}

	return true
}

// rewriteHeader replaces or appends the url-tvg attribute on the #EXTM3U line.
func rewriteHeader(line, epgRef string) string {
	if epgRef == "" {
		return line
	}
	if urlTvgRe.MatchString(line) {
		return urlTvgRe.ReplaceAllString(line, `url-tvg="`+epgRef+`"`)
	}
	if strings.HasSuffix(line, ">") {
		return line[:len(line)-1] + ` url-tvg="` + epgRef + `">`
	}
	return line + ` url-tvg="` + epgRef + `"`
}

// splitEntries pairs EXTINF lines with their following line. A metadata line
// with nothing after it is dropped with a warning rather than emitted broken.
func splitEntries(lines []string, logger zerolog.Logger) (header []string, entries []Entry) {
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(strings.TrimSpace(line), "#EXTINF:") {
			header = append(header, line)
			continue
		}
		if i+1 >= len(lines) {
			logger.Warn().
				Str("extinf", truncate(line, 100)).
				Msg("dropping metadata line without a stream URL")
			continue
		}
		entries = append(entries, Entry{Extinf: line, URL: lines[i+1]})
		i++
	}
	return header, entries
}

func stripOrigSuffix(name string) string {
	if strings.HasSuffix(strings.ToLower(name), " orig") {
		return name[:len(name)-5]
	}
	return name
}

// Count reports the number of entries (EXTINF lines) in M3U content.
func Count(content string) int {
	return countEntries(strings.Split(content, "\n"))
}

func countEntries(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#EXTINF:") {
			n++
		}
	}
	return n
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
