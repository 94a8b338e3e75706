package rtf

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Document is the content of an RTF file split into paragraphs. Each
// paragraph holds its text spans in order.
type Document struct {
	Paragraphs [][]string
}

// destinations whose content is never rendered as body text.
var destinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "object": true, "fldinst": true, "listtable": true,
	"listoverridetable": true, "rsidtbl": true, "generator": true,
	"xmlnstbl": true, "themedata": true, "colorschememapping": true,
	"datastore": true, "latentstyles": true, "filetbl": true,
	"revtbl": true, "header": true, "headerl": true, "headerr": true,
	"headerf": true, "footer": true, "footerl": true, "footerr": true,
	"footerf": true, "footnote": true, "bkmkstart": true, "bkmkend": true,
	"nonshppict": true, "mmathPr": true,
}

var symbols = map[string]string{
	"line": "\n", "tab": "\t", "cell": " ",
	"emdash": "—", "endash": "–", "bullet": "•",
	"lquote": "‘", "rquote": "’",
	"ldblquote": "“", "rdblquote": "”",
	"emspace": " ", "enspace": " ", "qmspace": " ",
	"~": " ", "_": "‑",
}

var breaks = map[string]bool{"par": true, "sect": true, "page": true, "row": true}

// Parse reads src into a Document.
func Parse(src []byte) (*Document, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}

	b := &builder{codepage: charmap.Windows1252}
	b.walk(root, &groupState{uc: 1})
	b.flush()
	return &Document{Paragraphs: b.paragraphs}, nil
}

// Blocks returns each paragraph's spans concatenated, trimmed, with empty
// paragraphs dropped.
func (d *Document) Blocks() []string {
	var out []string
	for _, spans := range d.Paragraphs {
		if text := strings.TrimSpace(strings.Join(spans, "")); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Text joins Blocks with blank lines.
func (d *Document) Text() string {
	return strings.Join(d.Blocks(), "\n\n")
}

type groupState struct {
	uc   int
	skip int // fallback characters still to drop after \u
}

type builder struct {
	codepage   *charmap.Charmap
	paragraphs [][]string
	current    []string
}

func (b *builder) emit(s string) {
	if s != "" {
		b.current = append(b.current, s)
	}
}

func (b *builder) flush() {
	if len(b.current) > 0 {
		b.paragraphs = append(b.paragraphs, b.current)
	}
	b.current = nil
}

func (b *builder) walk(g *node, parent *groupState) {
	if isDestination(g) {
		return
	}
	st := &groupState{uc: parent.uc}

	for _, n := range g.children {
		switch n.kind {
		case nodeGroup:
			b.walk(n, st)
		case nodeText:
			text := n.text
			if st.skip > 0 {
				drop := st.skip
				if drop > len(text) {
					drop = len(text)
				}
				text = text[drop:]
				st.skip -= drop
			}
			b.emit(b.decode(text))
		case nodeHex:
			if st.skip > 0 {
				st.skip--
				continue
			}
			b.emit(string(b.codepage.DecodeByte(n.hex)))
		case nodeControl:
			b.control(n, st)
		}
	}
}

func (b *builder) control(n *node, st *groupState) {
	switch {
	case breaks[n.word]:
		b.flush()
	case n.word == "u" && n.hasParam:
		r := n.param
		if r < 0 {
			r += 65536
		}
		b.emit(string(rune(r)))
		st.skip = st.uc
	case n.word == "uc" && n.hasParam:
		st.uc = n.param
	case n.word == "ansicpg" && n.hasParam:
		b.codepage = codepage(n.param)
	case n.word == "mac":
		b.codepage = charmap.Macintosh
	case n.word == "pc":
		b.codepage = charmap.CodePage437
	case n.word == "pca":
		b.codepage = charmap.CodePage850
	default:
		if s, ok := symbols[n.word]; ok {
			b.emit(s)
		}
	}
}

// decode maps raw 8-bit text through the document codepage.
func (b *builder) decode(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		sb.WriteRune(b.codepage.DecodeByte(s[i]))
	}
	return sb.String()
}

func isDestination(g *node) bool {
	if len(g.children) == 0 {
		return false
	}
	first := g.children[0]
	if first.kind != nodeControl {
		return false
	}
	return first.word == "*" || destinations[first.word]
}

func codepage(cp int) *charmap.Charmap {
	switch cp {
	case 437:
		return charmap.CodePage437
	case 850:
		return charmap.CodePage850
	case 852:
		return charmap.CodePage852
	case 866:
		return charmap.CodePage866
	case 874:
		return charmap.Windows874
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 1255:
		return charmap.Windows1255
	case 1256:
		return charmap.Windows1256
	case 1257:
		return charmap.Windows1257
	case 1258:
		return charmap.Windows1258
	case 10000:
		return charmap.Macintosh
	default:
		return charmap.Windows1252
	}
}
