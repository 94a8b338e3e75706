package pdf

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"image/png"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/internal/agent/ocr/ocrtest"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// pdfBuilder writes a minimal PDF with a correct xref table. Object 1 is
// the catalog and object 2 the page tree; pages are added after them.
type pdfBuilder struct {
	objects []string
	pages   []int
}

func newPDF() *pdfBuilder {
	return &pdfBuilder{objects: []string{"", ""}}
}

func (b *pdfBuilder) add(body string) int {
	b.objects = append(b.objects, body)
	return len(b.objects)
}

func (b *pdfBuilder) stream(dict string, data []byte) int {
	return b.add(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (b *pdfBuilder) page(resources string, content string) {
	contents := b.stream("", []byte(content))
	b.pages = append(b.pages, b.add(fmt.Sprintf(
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>",
		resources, contents)))
}

func (b *pdfBuilder) bytes() []byte {
	kids := make([]string, len(b.pages))
	for i, p := range b.pages {
		kids[i] = fmt.Sprintf("%d 0 R", p)
	}
	b.objects[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	b.objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(b.pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, xref)
	return buf.Bytes()
}

func (b *pdfBuilder) font() int {
	return b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
}

func (b *pdfBuilder) textPage(font int, text string) {
	b.page(fmt.Sprintf("/Font << /F1 %d 0 R >>", font),
		fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text))
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// grayImage adds a FlateDecode DeviceGray image of the given size.
func (b *pdfBuilder) grayImage(t *testing.T, width, height int, fill byte) int {
	pix := bytes.Repeat([]byte{fill}, width*height)
	return b.stream(fmt.Sprintf(
		"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode",
		width, height), deflate(t, pix))
}

// rgbImage adds an unfiltered DeviceRGB image.
func (b *pdfBuilder) rgbImage(width, height int) int {
	pix := bytes.Repeat([]byte{0x10, 0x80, 0xf0}, width*height)
	return b.stream(fmt.Sprintf(
		"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8",
		width, height), pix)
}

func (b *pdfBuilder) cmykImage(t *testing.T, width, height int) int {
	pix := bytes.Repeat([]byte{0, 0, 0, 0xff}, width*height)
	return b.stream(fmt.Sprintf(
		"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace [/ICCBased %d 0 R] /BitsPerComponent 8 /Filter [/FlateDecode]",
		width, height, b.stream("/N 4", nil)), deflate(t, pix))
}

// upPredictedImage adds a FlateDecode image whose rows carry PNG Up filter
// bytes. colours and columns go into DecodeParms as given.
func (b *pdfBuilder) upPredictedImage(t *testing.T, width, height int, colorSpace string, channels, colours, columns int) int {
	var pix []byte
	for y := 0; y < height; y++ {
		pix = append(pix, 2)
		if y == 0 {
			pix = append(pix, bytes.Repeat([]byte{0x60}, width*channels)...)
		} else {
			pix = append(pix, make([]byte, width*channels)...)
		}
	}
	return b.stream(fmt.Sprintf(
		"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent 8 /Filter /FlateDecode /DecodeParms << /Predictor 12 /Colors %d /Columns %d >>",
		width, height, colorSpace, colours, columns), deflate(t, pix))
}

func (b *pdfBuilder) imagePage(images map[string]int) {
	var refs []string
	var ops []string
	for name, obj := range images {
		refs = append(refs, fmt.Sprintf("/%s %d 0 R", name, obj))
		ops = append(ops, fmt.Sprintf("q 100 0 0 100 0 0 cm /%s Do Q", name))
	}
	b.page("/XObject << "+strings.Join(refs, " ")+" >>", strings.Join(ops, "\n"))
}

// widthEngine answers with the decoded PNG width, sleeping longer for
// narrower images so completion order differs from submission order.
func widthEngine(t *testing.T) *ocrtest.Engine {
	return &ocrtest.Engine{
		EngineID: ocr.EngineCLI,
		Respond: func(image []byte) (string, error) {
			img, err := png.Decode(bytes.NewReader(image))
			if err != nil {
				return "", err
			}
			w := img.Bounds().Dx()
			time.Sleep(time.Duration(20-w) * time.Millisecond)
			return fmt.Sprintf("w%d", w), nil
		},
	}
}

func noOCR(t *testing.T) ocr.Factory {
	return func(context.Context, config.TesseractConfig, logger.Logger) *ocr.Extractor {
		t.Fatal("OCR must not run when the text layer is present")
		return nil
	}
}

func run(t *testing.T, e *Extractor, data []byte, cfg *config.ExtractorConfig) (*document.Outcome, error) {
	t.Helper()
	return e.Extract(context.Background(), &document.Input{Data: data, Config: cfg})
}

func TestExtract_TextLayer(t *testing.T) {
	b := newPDF()
	font := b.font()
	b.textPage(font, "Hello World")
	b.textPage(font, "Second Page")

	out, err := run(t, New(WithOCR(noOCR(t))), b.bytes(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{TextLayer}, out.SubExtractorsUsed)
	assert.Contains(t, out.Content, "Hello World")
	assert.Contains(t, out.Content, "Second Page")
	assert.Less(t, strings.Index(out.Content, "Hello World"), strings.Index(out.Content, "Second Page"))
}

func TestExtract_OCRFallbackKeepsPageThenImageOrder(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{
		"Im2": b.cmykImage(t, 5, 2),
		"Im1": b.grayImage(t, 3, 2, 0x40),
	})
	b.imagePage(map[string]int{
		"Im1": b.rgbImage(7, 2),
	})

	engine := widthEngine(t)
	cfg := &config.ExtractorConfig{
		Tesseract: config.TesseractConfig{Languages: []string{"eng"}},
		PDF:       config.PDFConfig{OCRConcurrency: 3},
	}

	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "w3\nw5\nw7", out.Content)
	assert.Equal(t, []string{ocr.EngineCLI}, out.SubExtractorsUsed)
	assert.Len(t, engine.Images(), 3)
}

func TestExtract_OCRFallbackSequentialByDefault(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{"Im1": b.grayImage(t, 4, 4, 0x00)})
	b.imagePage(map[string]int{"Im1": b.grayImage(t, 6, 1, 0xff)})

	out, err := run(t, New(WithOCR(ocrtest.Factory(widthEngine(t)))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "w4\nw6", out.Content)
}

func TestExtract_PixelsSurviveReencoding(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{"Im1": b.grayImage(t, 2, 2, 0x7f)})

	engine := &ocrtest.Engine{Text: "ok"}
	_, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)

	require.Len(t, engine.Images(), 1)
	img, err := png.Decode(bytes.NewReader(engine.Images()[0]))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	r, g, bl, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0x7f7f), r)
	assert.Equal(t, r, g)
	assert.Equal(t, r, bl)
}

func TestExtract_UnsupportedImagesSkipped(t *testing.T) {
	b := newPDF()
	jpeg := b.stream("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode",
		[]byte("\xff\xd8\xff\xe0not really a jpeg\xff\xd9"))
	mask := b.stream("/Type /XObject /Subtype /Image /Width 8 /Height 1 /ImageMask true /BitsPerComponent 1", []byte{0xff})
	indexed := b.stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace [/Indexed /DeviceRGB 0 <000000>] /BitsPerComponent 8", []byte{0})
	b.imagePage(map[string]int{
		"Im1": jpeg,
		"Im2": mask,
		"Im3": indexed,
		"Im4": b.grayImage(t, 9, 1, 0x10),
	})

	engine := widthEngine(t)
	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "w9", out.Content)
	assert.Len(t, engine.Images(), 1)
}

func TestExtract_ImageStreamReadOnlyToRasterSize(t *testing.T) {
	b := newPDF()
	// a 1x1 image whose stream inflates to 64 MiB
	bomb := deflate(t, make([]byte, 64<<20))
	b.imagePage(map[string]int{
		"Im1": b.stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode", bomb),
	})
	data := b.bytes()
	e := New(WithOCR(ocrtest.Factory(widthEngine(t))))

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	out, err := run(t, e, data, nil)
	runtime.ReadMemStats(&after)

	require.NoError(t, err)
	assert.Equal(t, "w1", out.Content)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(8<<20))
}

func TestExtract_OversizedImagesSkipped(t *testing.T) {
	b := newPDF()
	huge := b.stream("/Type /XObject /Subtype /Image /Width 100000 /Height 100000 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode",
		deflate(t, []byte{0}))
	wide := b.stream("/Type /XObject /Subtype /Image /Width 40000 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8",
		[]byte{0})
	b.imagePage(map[string]int{
		"Im1": huge,
		"Im2": wide,
		"Im3": b.grayImage(t, 2, 2, 0x20),
	})

	engine := widthEngine(t)
	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "w2", out.Content)
	assert.Len(t, engine.Images(), 1)
}

func TestExtract_UpPredictedImages(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{
		"Im1": b.upPredictedImage(t, 4, 3, "DeviceGray", 1, 1, 4),
		"Im2": b.upPredictedImage(t, 5, 2, "DeviceRGB", 3, 3, 5),
		"Im3": b.upPredictedImage(t, 6, 2, "DeviceGray", 1, 1, 2),
	})

	engine := widthEngine(t)
	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "w4", out.Content)

	require.Len(t, engine.Images(), 1)
	img, err := png.Decode(bytes.NewReader(engine.Images()[0]))
	require.NoError(t, err)
	for y := 0; y < 3; y++ {
		r, _, _, _ := img.At(3, y).RGBA()
		assert.Equal(t, uint32(0x6060), r, "row %d", y)
	}
}

func TestExtract_NoTextNoImages(t *testing.T) {
	b := newPDF()
	b.page("", "0 0 m 100 100 l S")

	engine := &ocrtest.Engine{EngineID: ocr.EngineEmbedded}
	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", out.Content)
	assert.Equal(t, []string{ocr.EngineEmbedded}, out.SubExtractorsUsed)
	assert.Empty(t, engine.Images())
}

func TestExtract_EmptyOCROutputDropped(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{
		"Im1": b.grayImage(t, 1, 1, 0),
		"Im2": b.grayImage(t, 2, 1, 0),
		"Im3": b.grayImage(t, 3, 1, 0),
	})
	engine := &ocrtest.Engine{Respond: func(image []byte) (string, error) {
		img, err := png.Decode(bytes.NewReader(image))
		if err != nil || img.Bounds().Dx() == 2 {
			return "  ", err
		}
		return fmt.Sprintf("text %d", img.Bounds().Dx()), nil
	}}

	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "text 1\ntext 3", out.Content)
}

func TestExtract_StrictOCRFailure(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{"Im1": b.grayImage(t, 2, 2, 0)})

	engine := &ocrtest.Engine{EngineID: ocr.EngineEmbedded, Err: errors.New("boom")}
	cfg := &config.ExtractorConfig{Tesseract: config.TesseractConfig{Languages: []string{"eng"}, Strict: true}}

	_, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), cfg)
	var engErr *ocr.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Contains(t, err.Error(), "page 1 image Im1")
}

func TestExtract_DegradedOCRFailure(t *testing.T) {
	b := newPDF()
	b.imagePage(map[string]int{"Im1": b.grayImage(t, 2, 2, 0)})

	engine := &ocrtest.Engine{Err: errors.New("boom")}
	out, err := run(t, New(WithOCR(ocrtest.Factory(engine))), b.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", out.Content)
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"zero length", []byte{}},
		{"not a pdf", []byte("Hello, world!")},
		{"truncated", newPDF().bytes()[:40]},
		{"bad xref", bytes.Repeat([]byte("%PDF-1.4\nstartxref\n9999\n%%EOF\n"), 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, New(WithOCR(noOCR(t))), tt.data, nil)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestExtractor_Claims(t *testing.T) {
	e := New()
	assert.Equal(t, "pdf", e.Name())
	assert.True(t, document.CanProcess(e, "application/pdf"))
	assert.False(t, document.CanProcess(e, "application/x-pdf"))
}
