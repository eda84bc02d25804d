package epg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozyab09/iptv/internal/playlist"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) string {
	return t.Format("20060102150405") + " +0000"
}

func programme(channel string, start, stop time.Time) string {
	return `<programme start="` + ts(start) + `" stop="` + ts(stop) + `" channel="` + channel + `">` +
		`<title lang="ru">Передача</title>` +
		`<desc lang="ru">Подробное описание</desc>` +
		`</programme>`
}

func channel(id, name string) string {
	return `<channel id="` + id + `">` +
		`<display-name lang="en">` + name + `</display-name>` +
		`<display-name>` + name + ` HD</display-name>` +
		`<icon src="http://logo.example/` + id + `.png"/>` +
		`<url>http://site.example/` + id + `</url>` +
		`</channel>`
}

func retained(ids ...string) playlist.Retained {
	r := playlist.Retained{
		IDs:        make(map[string]struct{}),
		Categories: make(map[string]string),
	}
	for _, id := range ids {
		r.IDs[id] = struct{}{}
	}
	return r
}

func defaultPolicy() Policy {
	return Policy{
		FutureRetentionDays:            2,
		ExcludedChannelFutureLimitDays: 2,
		ExcludedChannelPastLimitHours:  1,
	}
}

func TestReduceEmptyChannelSetShortCircuits(t *testing.T) {
	out, err := Reduce(context.Background(), "this is not even xml", playlist.Retained{}, defaultPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><tv></tv>`, out)
}

func TestReduceMalformedXMLFails(t *testing.T) {
	_, err := Reduce(context.Background(), "<tv><channel id=", retained("1"), defaultPolicy(), now)
	require.Error(t, err)
}

func TestReduceChannelIntersection(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") + channel("2", "BBC") +
		programme("1", now.Add(-time.Hour), now.Add(time.Hour)) +
		programme("2", now.Add(-time.Hour), now.Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<channel id="1">`)
	assert.NotContains(t, out, `<channel id="2">`)
	assert.NotContains(t, out, `channel="2"`)
}

func TestReduceNoOrphans(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		// Channel 3 has a programme but no channel element.
		programme("1", now.Add(-time.Hour), now.Add(time.Hour)) +
		programme("3", now.Add(-time.Hour), now.Add(time.Hour)) +
		// Channel 4 has a channel element but no programme.
		channel("4", "Idle") +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1", "3", "4"), defaultPolicy(), now)
	require.NoError(t, err)

	parsed, err := Parse(out)
	require.NoError(t, err)

	ids := make(map[string]struct{})
	for _, ch := range parsed.Channels {
		ids[ch.ID] = struct{}{}
	}
	require.NotEmpty(t, parsed.Programmes)
	for _, p := range parsed.Programmes {
		_, ok := ids[p.ChannelRef()]
		assert.True(t, ok, "programme references missing channel %q", p.ChannelRef())
	}
	refs := make(map[string]struct{})
	for _, p := range parsed.Programmes {
		refs[p.ChannelRef()] = struct{}{}
	}
	for id := range ids {
		_, ok := refs[id]
		assert.True(t, ok, "channel %q has no programmes", id)
	}
}

func TestReduceChannelShape(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		programme("1", now.Add(-time.Hour), now.Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	// First display-name only, language preserved; icons gone, url kept.
	assert.Contains(t, out, `<display-name lang="en">CNN</display-name>`)
	assert.NotContains(t, out, "CNN HD")
	assert.NotContains(t, out, "<icon")
	assert.Contains(t, out, `<url>http://site.example/1</url>`)
}

func TestReduceDefaultsDisplayNameLanguage(t *testing.T) {
	doc := `<tv>` +
		`<channel id="1"><display-name>Первый</display-name></channel>` +
		programme("1", now.Add(-time.Hour), now.Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<display-name lang="ru">Первый</display-name>`)
}

func TestReduceClearsDescriptionKeepsAttributes(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		programme("1", now.Add(-time.Hour), now.Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<desc lang="ru"></desc>`)
	assert.NotContains(t, out, "Подробное описание")
	assert.Contains(t, out, `<title lang="ru">Передача</title>`)
}

func TestReduceExcludedChannelWindow(t *testing.T) {
	// Ended 90 minutes ago with a one hour past limit for excluded channels.
	doc := `<tv>` +
		channel("movie", "Кино Премиум") + channel("talk", "Ток Шоу") +
		programme("movie", now.Add(-3*time.Hour), now.Add(-90*time.Minute)) +
		programme("talk", now.Add(-3*time.Hour), now.Add(-90*time.Minute)) +
		`</tv>`

	r := retained("movie", "talk")
	r.Categories["movie"] = "Кино"
	pol := defaultPolicy()
	pol.ExcludedCategories = []string{"Кино"}

	out, err := Reduce(context.Background(), doc, r, pol, now)
	require.NoError(t, err)

	// Dropped on the excluded channel, kept on the permissive branch.
	assert.NotContains(t, out, `<channel id="movie">`)
	assert.NotContains(t, out, `channel="movie"`)
	assert.Contains(t, out, `channel="talk"`)
}

func TestReduceExcludedChannelByID(t *testing.T) {
	doc := `<tv>` +
		channel("2745", "Home 4K") +
		programme("2745", now.Add(-3*time.Hour), now.Add(-90*time.Minute)) +
		`</tv>`

	pol := defaultPolicy()
	pol.ExcludedChannelIDs = []string{"2745"}

	out, err := Reduce(context.Background(), doc, retained("2745"), pol, now)
	require.NoError(t, err)

	assert.NotContains(t, out, `channel="2745"`)
}

func TestReducePastRetentionWindow(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		programme("1", now.Add(-6*24*time.Hour), now.Add(-5*24*time.Hour)) + // too old
		programme("1", now.Add(-2*24*time.Hour), now.Add(-2*24*time.Hour).Add(time.Hour)) + // inside window
		`</tv>`

	pol := defaultPolicy()
	pol.PastRetentionDays = 3

	out, err := Reduce(context.Background(), doc, retained("1"), pol, now)
	require.NoError(t, err)

	assert.NotContains(t, out, ts(now.Add(-6*24*time.Hour)))
	assert.Contains(t, out, ts(now.Add(-2*24*time.Hour)))
}

func TestReducePermissiveBranchToleratesStaleFeeds(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		programme("1", now.Add(-200*24*time.Hour), now.Add(-200*24*time.Hour).Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	// Within the 365 day staleness tolerance.
	assert.Contains(t, out, `channel="1"`)
}

func TestReduceMalformedTimestampIncludesProgramme(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		`<programme start="garbage" stop="also garbage" channel="1"><title>X</title></programme>` +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<channel id="1">`)
	assert.Contains(t, out, `<title>X</title>`)
}

func TestReduceInvalidCalendarDateIncludesProgramme(t *testing.T) {
	doc := `<tv>` +
		channel("1", "CNN") +
		`<programme start="20251332250000 +0000" stop="20251332260000 +0000" channel="1"><title>X</title></programme>` +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("1"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<title>X</title>`)
}

func TestReduceFallbackTier(t *testing.T) {
	// Playlist identifiers never appear in the EPG; the time heuristic
	// selects channels with a current or upcoming programme.
	doc := `<tv>` +
		channel("guide-1", "CNN") + channel("guide-2", "Future") + channel("guide-3", "Far") +
		programme("guide-1", now.Add(-time.Hour), now.Add(time.Hour)) +
		programme("guide-2", now.Add(3*24*time.Hour), now.Add(3*24*time.Hour).Add(time.Hour)) +
		programme("guide-3", now.Add(30*24*time.Hour), now.Add(30*24*time.Hour).Add(time.Hour)) +
		`</tv>`

	out, err := Reduce(context.Background(), doc, retained("playlist-id"), defaultPolicy(), now)
	require.NoError(t, err)

	assert.Contains(t, out, `<channel id="guide-1">`)
	assert.Contains(t, out, `<channel id="guide-2">`)
	assert.NotContains(t, out, `<channel id="guide-3">`)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"valid with positive offset", "20250615120000 +0300", true},
		{"valid with negative offset", "20250615120000 -0500", true},
		{"missing offset token", "20250615120000", false},
		{"truncated", "2025061512 +0300", false},
		{"impossible month", "20251315120000 +0300", false},
		{"garbage", "not a timestamp", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseTimestamp(tc.in)
			assert.Equal(t, tc.ok, ok)
		})
	}
}
