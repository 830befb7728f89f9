// Package richtext flattens the nested markup used by XML scanner reports
// (paragraphs, ordered and unordered lists, block containers, links) into
// plain text.
package richtext

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches one HTML tag on a single line.
var tagPattern = regexp.MustCompile(`<.*?>`)

// Kind is the element kind of a markup node.
type Kind int

const (
	KindUnknown Kind = iota
	KindContainer
	KindParagraph
	KindListItem
	KindOrderedList
	KindUnorderedList
	KindLink
)

var kindNames = map[string]Kind{
	"containerblockelement": KindContainer,
	"paragraph":             KindParagraph,
	"listitem":              KindListItem,
	"orderedlist":           KindOrderedList,
	"unorderedlist":         KindUnorderedList,
	"urllink":               KindLink,
}

// KindOf returns the kind of an element tag. Matching is case-insensitive.
func KindOf(tag string) Kind {
	if k, ok := kindNames[strings.ToLower(tag)]; ok {
		return k
	}
	return KindUnknown
}

// String returns the canonical element name.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "ContainerBlockElement"
	case KindParagraph:
		return "Paragraph"
	case KindListItem:
		return "ListItem"
	case KindOrderedList:
		return "OrderedList"
	case KindUnorderedList:
		return "UnorderedList"
	case KindLink:
		return "URLLink"
	default:
		return "unknown"
	}
}

// Node is one markup element. It decodes from any XML element.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Kind returns the element kind of the node.
func (n Node) Kind() Kind {
	return KindOf(n.XMLName.Local)
}

// Attr returns the value of the named attribute, or "".
func (n Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Flatten renders a node as plain text.
func Flatten(n Node) string {
	var b strings.Builder
	flatten(&b, n)
	return b.String()
}

// FlattenAll renders a sequence of sibling nodes.
func FlattenAll(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		flatten(&b, n)
	}
	return b.String()
}

// FlattenXML decodes a single markup element and renders it. Empty or
// unparseable input yields "".
func FlattenXML(data []byte) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var n Node
	if err := xml.Unmarshal(data, &n); err != nil {
		return ""
	}
	return Flatten(n)
}

func flatten(b *strings.Builder, n Node) {
	switch n.Kind() {
	case KindContainer, KindParagraph, KindListItem:
		if len(n.Children) == 0 {
			b.WriteString(strings.TrimSpace(n.Text))
			return
		}
		for _, child := range n.Children {
			flatten(b, child)
		}

	case KindOrderedList:
		for i, item := range n.Children {
			b.WriteString("\t")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(" ")
			flatten(b, item)
			b.WriteString("\n")
		}

	case KindUnorderedList:
		for _, item := range n.Children {
			b.WriteString("\t* ")
			flatten(b, item)
			b.WriteString("\n")
		}

	case KindLink:
		flattenLink(b, n)
	}
}

// flattenLink emits the text attribute, then every other non-empty attribute
// in document order. An attribute equal to the value emitted just before it
// is skipped.
func flattenLink(b *strings.Builder, n Node) {
	last := ""
	if text := n.Attr("text"); text != "" {
		last = strings.TrimSpace(text)
		b.WriteString(last)
		b.WriteString(" ")
	}
	for _, a := range n.Attrs {
		if a.Name.Local == "text" || a.Value == "" || a.Value == last {
			continue
		}
		b.WriteString(a.Value)
		b.WriteString(" ")
		last = a.Value
	}
}

// StripTags removes HTML tags from s. Text between tags is kept verbatim.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}
