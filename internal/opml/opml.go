// Package opml turns OPML subscription lists into feed descriptors.
package opml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"

	"FeedDigest/internal/domain"
)

type document struct {
	Body struct {
		Outlines []outline `xml:"outline"`
	} `xml:"body"`
}

// outline keeps every attribute so that lookups do not depend on the
// exporter's casing (xmlUrl, xmlURL, xmlurl all occur in the wild).
type outline struct {
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []outline  `xml:"outline"`
}

func (o outline) attr(name string) string {
	for _, a := range o.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// isFeed reports whether the node is a subscription leaf rather than a folder.
func (o outline) isFeed() bool {
	return o.attr("xmlUrl") != ""
}

func (o outline) descriptor() domain.FeedDescriptor {
	feedURL := o.attr("xmlUrl")
	title := o.attr("title")
	if title == "" {
		title = o.attr("text")
	}
	if title == "" {
		title = feedURL
	}
	return domain.FeedDescriptor{
		Title:   title,
		FeedURL: feedURL,
		SiteURL: o.attr("htmlUrl"),
	}
}

// Parse decodes one OPML document and returns every feed found at any
// folder depth. A blank document or one without a body yields no feeds.
func Parse(data []byte) ([]domain.FeedDescriptor, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	// Exports declare legacy encodings (ISO-8859-1, GBK) and carry HTML
	// entities such as &nbsp; in titles.
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}

	var feeds []domain.FeedDescriptor
	stack := make([]outline, 0, len(doc.Body.Outlines))
	stack = append(stack, doc.Body.Outlines...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.isFeed() {
			feeds = append(feeds, node.descriptor())
		}
		stack = append(stack, node.Children...)
	}

	return feeds, nil
}
