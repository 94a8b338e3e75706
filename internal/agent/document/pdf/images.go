package pdf

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/text-extractor/internal/agent/ocr"
)

var errUnsupportedImage = errors.New("unsupported image")

const (
	// maxImageSide and maxImagePixels bound the decoded size of one image
	// XObject; a 600 dpi A3 scan stays well inside them.
	maxImageSide   = 1 << 15
	maxImagePixels = 64 << 20
)

// pageImage is one image XObject re-encoded as PNG.
type pageImage struct {
	page int
	name string
	png  []byte
}

// imageRefs lists the image XObjects on page in resource-name order.
func imageRefs(page pdf.Page) ([]string, pdf.Value) {
	xobjects := page.Resources().Key("XObject")
	var names []string
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			names = append(names, name)
		}
	}
	return names, xobjects
}

// decodeImage turns an image XObject's raw pixel buffer into PNG bytes.
// Only 8-bit gray, RGB and CMYK samples behind no filter or FlateDecode are
// handled; anything else returns errUnsupportedImage.
func decodeImage(v pdf.Value) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("decode image stream: %v", r)
		}
	}()

	if v.Key("ImageMask").Bool() {
		return nil, fmt.Errorf("%w: stencil mask", errUnsupportedImage)
	}
	width := int(v.Key("Width").Int64())
	height := int(v.Key("Height").Int64())
	if width <= 0 || height <= 0 || width > maxImageSide || height > maxImageSide || width*height > maxImagePixels {
		return nil, fmt.Errorf("%w: size %dx%d", errUnsupportedImage, width, height)
	}
	if bpc := v.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedImage, bpc)
	}
	channels, ok := colorChannels(v.Key("ColorSpace"))
	if !ok {
		return nil, fmt.Errorf("%w: colour space %v", errUnsupportedImage, v.Key("ColorSpace"))
	}
	if err := checkFilters(v.Key("Filter"), v.Key("DecodeParms"), width); err != nil {
		return nil, err
	}

	// Bytes past the raster are never read, however far the stream inflates.
	want := width * height * channels
	rc := v.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, int64(want)))
	if err != nil {
		return nil, fmt.Errorf("read image stream: %w", err)
	}

	img, err := rasterize(raw, width, height, channels)
	if err != nil {
		return nil, err
	}
	return ocr.EncodePNG(img)
}

// checkFilters rejects streams the PDF library would panic on or decode
// wrongly.
func checkFilters(filter, params pdf.Value, width int) error {
	switch filter.Kind() {
	case pdf.Null:
		return nil
	case pdf.Name:
		return checkFilter(filter.Name(), params, width)
	case pdf.Array:
		for i := 0; i < filter.Len(); i++ {
			if err := checkFilter(filter.Index(i).Name(), params.Index(i), width); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: filter %v", errUnsupportedImage, filter)
	}
}

// checkFilter allows FlateDecode with no predictor, or with PNG Up
// (predictor 12) over single-channel rows exactly Width bytes wide. The PDF
// library sizes predictor rows from Columns alone and ignores Colors.
func checkFilter(name string, params pdf.Value, width int) error {
	if name != "FlateDecode" {
		return fmt.Errorf("%w: filter %s", errUnsupportedImage, name)
	}
	pred := params.Key("Predictor")
	if pred.Kind() == pdf.Null {
		return nil
	}
	if pred.Int64() != 12 {
		return fmt.Errorf("%w: predictor %d", errUnsupportedImage, pred.Int64())
	}
	if colors := params.Key("Colors"); colors.Kind() != pdf.Null && colors.Int64() != 1 {
		return fmt.Errorf("%w: predictor 12 with %d colours", errUnsupportedImage, colors.Int64())
	}
	if bpc := params.Key("BitsPerComponent"); bpc.Kind() != pdf.Null && bpc.Int64() != 8 {
		return fmt.Errorf("%w: predictor 12 with %d bits per component", errUnsupportedImage, bpc.Int64())
	}
	if cols := params.Key("Columns").Int64(); cols != int64(width) {
		return fmt.Errorf("%w: predictor 12 with %d columns for width %d", errUnsupportedImage, cols, width)
	}
	return nil
}

func colorChannels(cs pdf.Value) (int, bool) {
	name := cs.Name()
	if cs.Kind() == pdf.Array {
		name = cs.Index(0).Name()
		if name == "ICCBased" {
			switch n := cs.Index(1).Key("N").Int64(); n {
			case 1, 3, 4:
				return int(n), true
			}
			return 0, false
		}
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1, true
	case "DeviceRGB", "CalRGB":
		return 3, true
	case "DeviceCMYK":
		return 4, true
	}
	return 0, false
}

func rasterize(raw []byte, width, height, channels int) (image.Image, error) {
	stride := width * channels
	if len(raw) < stride*height {
		return nil, fmt.Errorf("image stream truncated: have %d bytes, want %d", len(raw), stride*height)
	}
	rect := image.Rect(0, 0, width, height)

	switch channels {
	case 1:
		return &image.Gray{Pix: raw[:stride*height], Stride: stride, Rect: rect}, nil
	case 4:
		return &image.CMYK{Pix: raw[:stride*height], Stride: stride, Rect: rect}, nil
	default:
		img := image.NewNRGBA(rect)
		for y := 0; y < height; y++ {
			row := raw[y*stride:]
			for x := 0; x < width; x++ {
				p := row[x*3:]
				img.SetNRGBA(x, y, color.NRGBA{R: p[0], G: p[1], B: p[2], A: 0xff})
			}
		}
		return img, nil
	}
}
