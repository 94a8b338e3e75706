package office

import (
	"archive/zip"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/document/xmltext"
)

var _ document.Extractor = (*PptxExtractor)(nil)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PptxExtractor reads ppt/slides/slideN.xml in slide-number order.
type PptxExtractor struct{}

func NewPptx() *PptxExtractor {
	return &PptxExtractor{}
}

func (e *PptxExtractor) Name() string {
	return "pptx"
}

func (e *PptxExtractor) MimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.presentationml.presentation"}
}

type slideFile struct {
	number int
	file   *zip.File
}

func (e *PptxExtractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	reader, err := openArchive(in.Data)
	if err != nil {
		return nil, err
	}

	var files []slideFile
	for _, f := range reader.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, slideFile{number: n, file: f})
	}
	// numeric, so slide10 follows slide9
	sort.Slice(files, func(i, j int) bool { return files[i].number < files[j].number })

	slides := make([]string, 0, len(files))
	for _, sf := range files {
		content, err := readFile(sf.file)
		if err != nil {
			return nil, err
		}
		root, err := xmltext.Parse(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sf.file.Name, err)
		}
		slides = append(slides, strings.Join(xmltext.Collect(root, "a:p"), paragraphSep))
	}

	return &document.Outcome{Content: joinSlides(slides)}, nil
}
