package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor transforms an image before recognition.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

type grayscaleProcessor struct{}

func (grayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type contrastProcessor struct {
	amount float64
}

func (p contrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type sharpenProcessor struct {
	sigma float64
}

func (p sharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.sigma), nil
}

// DefaultPreprocessors is the cleanup chain applied when preprocessing is on.
func DefaultPreprocessors() []ImagePreprocessor {
	return []ImagePreprocessor{
		grayscaleProcessor{},
		contrastProcessor{amount: 20},
		sharpenProcessor{sigma: 0.5},
	}
}

// Preprocess decodes data, runs DefaultPreprocessors and re-encodes as PNG.
func Preprocess(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	for _, p := range DefaultPreprocessors() {
		img, err = p.Process(img)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if img == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}

	return EncodePNG(img)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
