package playlist

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	unorm "golang.org/x/text/unicode/norm"
)

// Quality and version tokens removed, as whole words, when grouping
// duplicate channels. Tokens are bounded by whitespace or string edges, so
// a token glued to a name ("КаналHD") stays part of the key. Order matters:
// "hd" is stripped before "full hd" can match, which mirrors how names like
// "Full HD" collapse to "full".
var qualityTokens = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|\s)hd(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)orig(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)sd(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)full hd(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)4k(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)uhd(?:\s|$)`),
	regexp.MustCompile(`(?:^|\s)uhd tv(?:\s|$)`),
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NameKey normalizes a display name for duplicate grouping: NFC form,
// case-folded, quality tokens removed, whitespace collapsed.
func NameKey(name string) string {
	s := unorm.NFC.String(name)
	s = strings.ToLower(strings.TrimSpace(s))
	s = unorm.NFC.String(s)
	for _, re := range qualityTokens {
		s = re.ReplaceAllString(s, " ")
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// dedupe collapses each duplicate group to one representative. HD variants
// shadow non-HD variants within a group; among the remaining candidates the
// highest recording priority wins, ties keeping the first encountered.
// Groups are emitted in order of first appearance.
func dedupe(entries []Entry, logger zerolog.Logger) []Entry {
	groups := make(map[string][]Entry, len(entries))
	var order []string

	for _, e := range entries {
		key := NameKey(e.Name())
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	out := make([]Entry, 0, len(order))
	for _, key := range order {
		variants := groups[key]

		var hd, nonHD []Entry
		for _, v := range variants {
			if strings.Contains(strings.ToLower(v.Name()), " hd") {
				hd = append(hd, v)
			} else {
				nonHD = append(nonHD, v)
			}
		}
		if len(hd) > 0 && len(nonHD) > 0 {
			variants = hd
			logger.Debug().
				Str("group", key).
				Int("removed", len(nonHD)).
				Msg("removed non-HD variants")
		}

		if len(variants) > 1 {
			sort.SliceStable(variants, func(i, j int) bool {
				return variants[i].RecordingPriority() > variants[j].RecordingPriority()
			})
			logger.Debug().
				Str("group", key).
				Int("removed", len(variants)-1).
				Msg("removed duplicate variants")
		}
		out = append(out, variants[0])
	}
	return out
}
