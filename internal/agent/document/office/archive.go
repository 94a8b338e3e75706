// Package office extracts paragraph text from ZIP-packaged XML formats:
// Office Open XML (docx, pptx) and OpenDocument (odt, odp).
package office

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/document/xmltext"
)

const (
	paragraphSep = "\n\n"
	slideSep     = "\n\n\n"
)

// maxPartSize caps a single decompressed XML part.
const maxPartSize = 256 << 20

func openArchive(data []byte) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrInvalidArchive, err)
	}
	return reader, nil
}

// readPart returns the named entry's bytes, or nil when it is absent.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name == name {
			return readFile(file)
		}
	}
	return nil, nil
}

func readFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", document.ErrInvalidArchive, file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", document.ErrInvalidArchive, file.Name, err)
	}
	if len(content) > maxPartSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", document.ErrInvalidArchive, file.Name, maxPartSize)
	}
	return content, nil
}

// partParagraphs extracts one part and joins its container texts with
// blank lines. A missing part yields "".
func partParagraphs(data []byte, part string, containers ...string) (string, error) {
	reader, err := openArchive(data)
	if err != nil {
		return "", err
	}
	content, err := readPart(reader, part)
	if err != nil || content == nil {
		return "", err
	}

	root, err := xmltext.Parse(content)
	if err != nil {
		return "", fmt.Errorf("%s: %w", part, err)
	}
	return strings.Join(xmltext.Collect(root, containers...), paragraphSep), nil
}

// joinSlides joins non-empty slide texts.
func joinSlides(slides []string) string {
	kept := slides[:0]
	for _, s := range slides {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, slideSep)
}
