package epg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesUnknownElements(t *testing.T) {
	doc, err := Parse(`<tv>
<channel id="1"><display-name>CNN</display-name></channel>
<programme start="20250615100000 +0000" stop="20250615110000 +0000" channel="1">
<title lang="en">News</title>
<category lang="en">News</category>
<rating system="MPAA"><value>PG</value></rating>
</programme>
</tv>`)
	require.NoError(t, err)

	require.Len(t, doc.Channels, 1)
	assert.Equal(t, "1", doc.Channels[0].ID)

	require.Len(t, doc.Programmes, 1)
	p := doc.Programmes[0]
	assert.Equal(t, "20250615100000 +0000", p.Attr("start"))
	assert.Equal(t, "1", p.ChannelRef())

	names := make([]string, 0, len(p.Children))
	for _, c := range p.Children {
		names = append(names, c.XMLName.Local)
	}
	assert.Equal(t, []string{"title", "category", "rating"}, names)

	out, err := Serialize(doc)
	require.NoError(t, err)
	assert.Contains(t, out, `<rating system="MPAA">`)
	assert.Contains(t, out, "<value>PG</value>")
}

func TestParseRejectsEntityExpansion(t *testing.T) {
	_, err := Parse(`<!DOCTYPE tv [<!ENTITY x "boom">]><tv><channel id="&x;"/></tv>`)
	require.Error(t, err)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse(`<tv><channel id="1">`)
	require.Error(t, err)
}
