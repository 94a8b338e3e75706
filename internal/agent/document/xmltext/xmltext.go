// Package xmltext parses office XML parts into a generic element tree and
// collects paragraph-level text from it. Tag names keep their namespace
// prefix ("w:p", "text:h") so callers can name containers the way they
// appear in the file; attributes are dropped.
package xmltext

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// TextKey is the Name given to character-data leaves.
const TextKey = "#text"

// Node is an element or a text leaf. Children keep document order, so
// repeated elements are simply repeated children.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// IsText reports whether n is a character-data leaf.
func (n *Node) IsText() bool {
	return n.Name == TextKey
}

// Parse builds a tree from an XML document. The returned root has an empty
// Name and the document element as its child. Parts declaring a non-UTF-8
// encoding are transcoded while decoding.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	root := &Node{}
	stack := []*Node{root}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Node{Name: qualified(t.Name)}
			top.Children = append(top.Children, child)
			stack = append(stack, child)
		case xml.EndElement:
			if len(stack) == 1 || top.Name != qualified(t.Name) {
				return nil, fmt.Errorf("failed to parse xml: unexpected </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 1 {
				top.Children = append(top.Children, &Node{Name: TextKey, Text: string(t)})
			}
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("failed to parse xml: unclosed <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Find returns every element named name, depth-first. Matches are not
// searched for nested matches.
func Find(root *Node, name string) []*Node {
	var out []*Node
	walk(root, map[string]bool{name: true}, func(n *Node) {
		out = append(out, n)
	})
	return out
}

// Collect finds every container element whose name is in containers (in
// document order) and returns the text of each: leaves joined with single
// spaces and whitespace runs collapsed. A container nested in another one,
// such as a paragraph inside a text box, is its own unit following its
// parent and does not contribute to the parent's text. Containers without
// text are dropped.
func Collect(root *Node, containers ...string) []string {
	names := make(map[string]bool, len(containers))
	for _, c := range containers {
		names[c] = true
	}

	var out []string
	var emit func(*Node)
	emit = func(n *Node) {
		var parts []string
		var nested []*Node
		for _, c := range n.Children {
			ownText(c, names, &parts, &nested)
		}
		if text := collapse(parts); text != "" {
			out = append(out, text)
		}
		for _, c := range nested {
			emit(c)
		}
	}
	walk(root, names, emit)
	return out
}

func ownText(n *Node, names map[string]bool, parts *[]string, nested *[]*Node) {
	switch {
	case n.IsText():
		*parts = append(*parts, n.Text)
	case names[n.Name]:
		*nested = append(*nested, n)
	default:
		for _, c := range n.Children {
			ownText(c, names, parts, nested)
		}
	}
}

// Text returns the collapsed text under n.
func Text(n *Node) string {
	var parts []string
	var visit func(*Node)
	visit = func(n *Node) {
		if n.IsText() {
			parts = append(parts, n.Text)
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(n)
	return collapse(parts)
}

func collapse(parts []string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func walk(n *Node, names map[string]bool, fn func(*Node)) {
	if n.IsText() {
		return
	}
	if names[n.Name] {
		fn(n)
		return
	}
	for _, c := range n.Children {
		walk(c, names, fn)
	}
}
