// Package epg implements the XMLTV reducer: channel-set intersection,
// category/ID exclusion and multi-tier time retention.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// EmptyDocument is the reduced output for an empty channel set.
const EmptyDocument = xmlHeader + "<tv></tv>"

// TV is an XMLTV document. Channel and programme children are carried as
// generic nodes so unknown elements survive a round trip untouched.
type TV struct {
	XMLName    xml.Name    `xml:"tv"`
	Channels   []Channel   `xml:"channel"`
	Programmes []Programme `xml:"programme"`
}

// Channel is an XMLTV channel element.
type Channel struct {
	XMLName  xml.Name `xml:"channel"`
	ID       string   `xml:"id,attr"`
	Children []Node   `xml:",any"`
}

// Programme is an XMLTV programme element. All attributes, including
// start/stop/channel, live in Attrs so they are preserved verbatim.
type Programme struct {
	XMLName  xml.Name   `xml:"programme"`
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []Node     `xml:",any"`
}

// Node is an arbitrary XML element with attributes, text and children.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Attr returns the value of the named programme attribute, or "".
func (p Programme) Attr(name string) string {
	for _, a := range p.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ChannelRef returns the foreign key into Channel.ID.
func (p Programme) ChannelRef() string { return p.Attr("channel") }

// Parse decodes an XMLTV document. Parsing is strict and entity expansion is
// disabled; a malformed document fails outright rather than yielding a
// partial guide.
func Parse(content string) (*TV, error) {
	var doc TV
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// Serialize renders the document as an indented XML string with the
// standard declaration.
func Serialize(doc *TV) (string, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode xmltv: %w", err)
	}
	return xmlHeader + "\n" + string(out), nil
}

// deepCopy clones a node tree. Descriptions lose their text content but keep
// attributes and children, which bounds output size without dropping
// rating or category metadata.
func deepCopy(n Node) Node {
	out := Node{
		XMLName: n.XMLName,
		Attrs:   append([]xml.Attr(nil), n.Attrs...),
		Text:    n.Text,
	}
	if strings.EqualFold(n.XMLName.Local, "desc") {
		out.Text = ""
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, deepCopy(child))
	}
	return out
}
