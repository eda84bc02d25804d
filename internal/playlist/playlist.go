// Package playlist implements M3U playlist filtering: category and name
// gates, regional-variant exclusion and duplicate resolution.
package playlist

import (
	"regexp"
	"strconv"
	"strings"
)

// Entry is one playlist record: an EXTINF metadata line plus its stream URL.
type Entry struct {
	Extinf string // full EXTINF line, attributes untouched
	URL    string
}

var (
	groupTitleRe = regexp.MustCompile(`(?i)group-title="([^"]*)"`)
	tvgIDRe      = regexp.MustCompile(`(?i)tvg-id="([^"]*)"`)
	tvgRecRe     = regexp.MustCompile(`tvg-rec="(\d+)"`)
	urlTvgRe     = regexp.MustCompile(`(?i)url-tvg="[^"]*"`)
)

// Name returns the display name, the free text after the last comma of the
// EXTINF line.
func (e Entry) Name() string {
	if i := strings.LastIndex(e.Extinf, ","); i >= 0 {
		return strings.TrimSpace(e.Extinf[i+1:])
	}
	return ""
}

// TvgID returns the channel identifier attribute, or "" when absent.
func (e Entry) TvgID() string {
	if m := tvgIDRe.FindStringSubmatch(e.Extinf); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Group returns the category attribute, or "" when absent.
func (e Entry) Group() string {
	if m := groupTitleRe.FindStringSubmatch(e.Extinf); m != nil {
		return m[1]
	}
	return ""
}

// RecordingPriority returns the tvg-rec rank used for duplicate resolution.
// Entries without the attribute rank as zero.
func (e Entry) RecordingPriority() int {
	if m := tvgRecRe.FindStringSubmatch(e.Extinf); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// withName returns the EXTINF line with its display name replaced.
func (e Entry) withName(name string) string {
	if i := strings.LastIndex(e.Extinf, ","); i >= 0 {
		return e.Extinf[:i] + "," + name
	}
	return e.Extinf
}

// Retained is the channel set handed to the EPG reducer: every unique
// channel identifier that survived filtering, and the category each
// identifier belongs to where one was present. Immutable once produced.
type Retained struct {
	IDs        map[string]struct{}
	Categories map[string]string
}

// Channels collects identifiers and categories from the given entries,
// skipping entries without an identifier.
func Channels(entries []Entry) Retained {
	r := Retained{
		IDs:        make(map[string]struct{}, len(entries)),
		Categories: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		id := e.TvgID()
		if id == "" {
			continue
		}
		r.IDs[id] = struct{}{}
		if g := e.Group(); g != "" {
			r.Categories[id] = g
		}
	}
	return r
}
