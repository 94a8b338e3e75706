package rtf

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNotRTF is returned when the input does not open with "{\rtf".
var ErrNotRTF = errors.New("not an rtf document")

type nodeKind int

const (
	nodeGroup nodeKind = iota
	nodeControl
	nodeText
	nodeHex
)

// node is one element of the parsed group tree.
type node struct {
	kind     nodeKind
	word     string // control word, or the symbol for control symbols
	param    int
	hasParam bool
	text     string
	hex      byte
	children []*node
}

// parse builds the group tree. The returned node is the outermost {\rtf ...}
// group. Groups left open at EOF are closed implicitly.
func parse(src []byte) (*node, error) {
	p := &parser{src: src}
	p.skipSpace()
	if !p.hasPrefix(`{\rtf`) {
		return nil, ErrNotRTF
	}

	root := &node{kind: nodeGroup}
	stack := []*node{root}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		top := stack[len(stack)-1]
		switch c {
		case '{':
			p.pos++
			g := &node{kind: nodeGroup}
			top.children = append(top.children, g)
			stack = append(stack, g)
		case '}':
			p.pos++
			if len(stack) == 1 {
				return nil, fmt.Errorf("unbalanced '}' at offset %d", p.pos-1)
			}
			stack = stack[:len(stack)-1]
		case '\\':
			n, err := p.control()
			if err != nil {
				return nil, err
			}
			if n != nil {
				top.children = append(top.children, n)
			}
		case '\r', '\n':
			p.pos++
		default:
			start := p.pos
			for p.pos < len(p.src) && !isSpecial(p.src[p.pos]) {
				p.pos++
			}
			top.children = append(top.children, &node{kind: nodeText, text: string(p.src[start:p.pos])})
		}
	}

	if len(root.children) == 0 || root.children[0].kind != nodeGroup {
		return nil, ErrNotRTF
	}
	return root.children[0], nil
}

type parser struct {
	src []byte
	pos int
}

func (p *parser) skipSpace() {
	if p.hasPrefix("\xef\xbb\xbf") {
		p.pos += 3
	}
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\r' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) hasPrefix(s string) bool {
	return len(p.src)-p.pos >= len(s) && string(p.src[p.pos:p.pos+len(s)]) == s
}

// control consumes a backslash sequence starting at p.pos.
func (p *parser) control() (*node, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return nil, nil
	}

	c := p.src[p.pos]
	switch {
	case isLetter(c):
		start := p.pos
		for p.pos < len(p.src) && isLetter(p.src[p.pos]) {
			p.pos++
		}
		n := &node{kind: nodeControl, word: string(p.src[start:p.pos])}

		numStart := p.pos
		if p.pos < len(p.src) && p.src[p.pos] == '-' {
			p.pos++
		}
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
		}
		if digits := string(p.src[numStart:p.pos]); digits != "" && digits != "-" {
			v, err := strconv.Atoi(digits)
			if err != nil {
				return nil, fmt.Errorf("bad parameter for \\%s: %w", n.word, err)
			}
			n.param, n.hasParam = v, true
		} else {
			p.pos = numStart
		}

		// a single space delimiter belongs to the control word
		if p.pos < len(p.src) && p.src[p.pos] == ' ' {
			p.pos++
		}
		return n, nil

	case c == '\'':
		if p.pos+2 >= len(p.src) {
			p.pos = len(p.src)
			return nil, nil
		}
		v, err := strconv.ParseUint(string(p.src[p.pos+1:p.pos+3]), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad hex escape at offset %d: %w", p.pos, err)
		}
		p.pos += 3
		return &node{kind: nodeHex, hex: byte(v)}, nil

	case c == '\\' || c == '{' || c == '}':
		p.pos++
		return &node{kind: nodeText, text: string(c)}, nil

	case c == '\r' || c == '\n':
		// escaped newline is a paragraph break
		p.pos++
		return &node{kind: nodeControl, word: "par"}, nil

	default:
		p.pos++
		return &node{kind: nodeControl, word: string(c)}, nil
	}
}

func isSpecial(c byte) bool {
	return c == '{' || c == '}' || c == '\\' || c == '\r' || c == '\n'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
