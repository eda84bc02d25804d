package epg

import (
	"context"
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/metrics"
	"github.com/ozyab09/iptv/internal/playlist"
)

// Policy configures program retention. Read-only per run.
type Policy struct {
	PastRetentionDays              int
	FutureRetentionDays            int
	ExcludedChannelFutureLimitDays int
	ExcludedChannelPastLimitHours  int
	ExcludedCategories             []string
	ExcludedChannelIDs             []string
}

// Programs on channels with no playlist match qualify through the fallback
// tier when they start within this horizon of now.
const fallbackHorizon = 7 * 24 * time.Hour

// Stale feeds stay tolerable this long on the permissive branch.
const staleTolerance = 365 * 24 * time.Hour

var timestampRe = regexp.MustCompile(`^(\d{14})\s+\S+`)

// parseTimestamp parses an XMLTV "YYYYMMDDHHMMSS ±ZZZZ" attribute. The
// offset token must be present but is not applied; programs are compared on
// their wall-clock calendar components, matching the guide sources this
// feeds on. ok is false when the value is malformed or names an impossible
// date.
func parseTimestamp(s string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102150405", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Reduce derives the channel-scoped, time-windowed subset of an XMLTV
// document consistent with the filtered playlist. now is injected so runs
// over frozen inputs are reproducible.
func Reduce(ctx context.Context, content string, channels playlist.Retained, pol Policy, now time.Time) (string, error) {
	logger := log.WithComponentFromContext(ctx, "epg")

	if len(channels.IDs) == 0 {
		logger.Warn().Msg("no channel IDs provided, returning empty EPG")
		return EmptyDocument, nil
	}

	doc, err := Parse(content)
	if err != nil {
		return "", err
	}

	retained := intersect(doc, channels, now, logger)

	excludedCategories := make(map[string]struct{}, len(pol.ExcludedCategories))
	for _, c := range pol.ExcludedCategories {
		excludedCategories[strings.ToLower(c)] = struct{}{}
	}
	excludedIDs := make(map[string]struct{}, len(pol.ExcludedChannelIDs))
	for _, id := range pol.ExcludedChannelIDs {
		excludedIDs[id] = struct{}{}
	}

	// Program-level time and exclusion filter.
	hasPrograms := make(map[string]struct{})
	var included []Programme
	for _, prog := range doc.Programmes {
		ref := prog.ChannelRef()
		if _, ok := retained[ref]; !ok {
			continue
		}

		excluded := false
		if cat, ok := channels.Categories[ref]; ok {
			_, excluded = excludedCategories[strings.ToLower(cat)]
		}
		if !excluded {
			_, excluded = excludedIDs[ref]
		}

		start, startOK := parseTimestamp(prog.Attr("start"))
		stop, stopOK := parseTimestamp(prog.Attr("stop"))
		if !startOK || !stopOK {
			// Favor completeness over correctness on malformed records.
			logger.Warn().
				Str("channel", ref).
				Str("start", prog.Attr("start")).
				Str("stop", prog.Attr("stop")).
				Msg("could not parse programme timestamps, including it anyway")
			metrics.RecordTimestampAnomaly()
			included = append(included, prog)
			hasPrograms[ref] = struct{}{}
			continue
		}

		if includeProgram(start, stop, now, excluded, pol) {
			included = append(included, prog)
			hasPrograms[ref] = struct{}{}
		}
	}

	out := &TV{}

	// Channel emission: retained, has surviving programs, present in source.
	emitted := make(map[string]struct{}, len(hasPrograms))
	for _, ch := range doc.Channels {
		if _, ok := retained[ch.ID]; !ok {
			continue
		}
		if _, ok := hasPrograms[ch.ID]; !ok {
			continue
		}
		out.Channels = append(out.Channels, reduceChannel(ch))
		emitted[ch.ID] = struct{}{}
	}

	// Program emission, restricted to emitted channels so the output never
	// contains an orphaned reference in either direction.
	for _, prog := range included {
		if _, ok := emitted[prog.ChannelRef()]; !ok {
			continue
		}
		out.Programmes = append(out.Programmes, reduceProgramme(prog))
	}

	metrics.SetEPGWritten(len(out.Channels), len(out.Programmes))
	logger.Info().
		Str("event", "reduce.done").
		Int("channels", len(out.Channels)).
		Int("programmes", len(out.Programmes)).
		Msg("EPG reduction completed")

	return Serialize(out)
}

// intersect collects the channel refs that appear on programmes and match the
// playlist. An empty intersection degrades to a time-heuristic tier: keep
// channels with a program overlapping now or starting within seven days.
// A name-based join is intentionally absent.
func intersect(doc *TV, channels playlist.Retained, now time.Time, logger zerolog.Logger) map[string]struct{} {
	retained := make(map[string]struct{})
	for _, prog := range doc.Programmes {
		ref := prog.ChannelRef()
		if _, ok := channels.IDs[ref]; ok {
			retained[ref] = struct{}{}
		}
	}
	if len(retained) > 0 {
		return retained
	}

	logger.Warn().
		Str("event", "reduce.fallback").
		Str("tier", "time-heuristic").
		Msg("no playlist channel matched the EPG, falling back to time-based selection")
	metrics.RecordEPGFallback()

	for _, prog := range doc.Programmes {
		ref := prog.ChannelRef()
		if ref == "" {
			continue
		}
		start, startOK := parseTimestamp(prog.Attr("start"))
		stop, stopOK := parseTimestamp(prog.Attr("stop"))
		if !startOK || !stopOK {
			continue
		}
		overlapping := !start.After(now) && !stop.Before(now)
		upcoming := !start.Before(now) && start.Sub(now) <= fallbackHorizon
		if overlapping || upcoming {
			retained[ref] = struct{}{}
		}
	}
	return retained
}

// includeProgram decides retention for one program. Three tiers: an explicit
// past-retention window when configured, a tight window for excluded
// channels, and a permissive union for everything else that tolerates
// sources with skewed clocks or stale feeds.
func includeProgram(start, stop, now time.Time, excluded bool, pol Policy) bool {
	future := time.Duration(pol.FutureRetentionDays) * 24 * time.Hour

	if pol.PastRetentionDays > 0 {
		past := time.Duration(pol.PastRetentionDays) * 24 * time.Hour
		lower := now.Add(-past)
		upper := now.Add(future)
		return (!stop.Before(lower) || !start.After(upper)) &&
			(!start.Before(lower) || !stop.Before(lower))
	}

	if excluded {
		lower := now.Add(-time.Duration(pol.ExcludedChannelPastLimitHours) * time.Hour)
		upper := now.Add(time.Duration(pol.ExcludedChannelFutureLimitDays) * 24 * time.Hour)
		return !stop.Before(lower) && !start.After(upper)
	}

	return !stop.Before(now) ||
		!start.After(now.Add(future)) ||
		now.Sub(stop) <= staleTolerance ||
		(!start.After(now) && !stop.Before(now))
}

// reduceChannel keeps the first display-name (language marker defaulted) and
// every non-display-name, non-icon child.
func reduceChannel(ch Channel) Channel {
	out := Channel{ID: ch.ID, XMLName: ch.XMLName}

	seenName := false
	for _, child := range ch.Children {
		switch child.XMLName.Local {
		case "display-name":
			if seenName {
				continue
			}
			seenName = true
			name := Node{
				XMLName: child.XMLName,
				Text:    child.Text,
			}
			lang := ""
			for _, a := range child.Attrs {
				if a.Name.Local == "lang" {
					lang = a.Value
					break
				}
			}
			if lang == "" {
				lang = "ru"
			}
			name.Attrs = []xml.Attr{{Name: xml.Name{Local: "lang"}, Value: lang}}
			out.Children = append(out.Children, name)
		case "icon":
			// Dropped to bound output size.
		default:
			out.Children = append(out.Children, deepCopy(child))
		}
	}
	return out
}

// reduceProgramme deep-copies attributes and children; desc text is cleared
// inside deepCopy.
func reduceProgramme(p Programme) Programme {
	out := Programme{
		XMLName: p.XMLName,
		Attrs:   append([]xml.Attr(nil), p.Attrs...),
	}
	for _, child := range p.Children {
		out.Children = append(out.Children, deepCopy(child))
	}
	return out
}
