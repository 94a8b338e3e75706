package config

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLanguage is used when no OCR language is configured.
const DefaultLanguage = "eng"

// SupportedLanguages is the set of tesseract traineddata codes the OCR
// engines ship. It is read-only after init.
var SupportedLanguages = newLanguageSet(
	"afr", "amh", "ara", "asm", "aze", "aze_cyrl", "bel", "ben", "bod", "bos",
	"bul", "cat", "ceb", "ces", "chi_sim", "chi_tra", "chr", "cym", "dan", "deu",
	"dzo", "ell", "eng", "enm", "epo", "est", "eus", "fas", "fin", "fra",
	"frk", "frm", "gle", "glg", "grc", "guj", "hat", "heb", "hin", "hrv",
	"hun", "iku", "ind", "isl", "ita", "ita_old", "jav", "jpn", "kan", "kat",
	"kat_old", "kaz", "khm", "kir", "kor", "kur", "lao", "lat", "lav", "lit",
	"mal", "mar", "mkd", "mlt", "msa", "mya", "nep", "nld", "nor", "ori",
	"pan", "pol", "por", "pus", "ron", "rus", "san", "sin", "slk", "slv",
	"spa", "spa_old", "sqi", "srp", "srp_latn", "swa", "swe", "syr", "tam", "tel",
	"tgk", "tgl", "tha", "tir", "tur", "uig", "ukr", "urd", "uzb", "uzb_cyrl",
	"vie", "yid",
)

type languageSet struct {
	codes  map[string]struct{}
	sorted []string
}

func newLanguageSet(codes ...string) languageSet {
	set := languageSet{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		set.codes[c] = struct{}{}
	}
	set.sorted = make([]string, 0, len(set.codes))
	for c := range set.codes {
		set.sorted = append(set.sorted, c)
	}
	sort.Strings(set.sorted)
	return set
}

// Contains reports whether code is a supported language.
func (s languageSet) Contains(code string) bool {
	_, ok := s.codes[code]
	return ok
}

// List returns the supported codes in sorted order.
func (s languageSet) List() []string {
	return append([]string(nil), s.sorted...)
}

// TesseractConfig controls OCR engine selection and recognition.
type TesseractConfig struct {
	// Languages are joined with "+" for tesseract. Defaults to ["eng"].
	Languages []string `json:"languages,omitempty" yaml:"languages"`
	// ForceInProcess skips the CLI engine even when the binary is available.
	ForceInProcess bool `json:"forceInProcess,omitempty" yaml:"forceInProcess"`
	// Binary overrides the tesseract executable path.
	Binary string `json:"binary,omitempty" yaml:"binary"`
	// Strict surfaces OCR engine failures instead of degrading to empty text.
	Strict bool `json:"strict,omitempty" yaml:"strict"`
	// Preprocess runs grayscale/contrast cleanup on every image before it
	// reaches either OCR engine.
	Preprocess bool `json:"preprocess,omitempty" yaml:"preprocess"`
}

// PDFConfig tunes the scanned-page fallback.
type PDFConfig struct {
	// OCRConcurrency bounds parallel image recognition. 1 means sequential.
	OCRConcurrency int `json:"ocrConcurrency,omitempty" yaml:"ocrConcurrency"`
}

// ExtractorConfig is the per-call extraction configuration.
type ExtractorConfig struct {
	Tesseract TesseractConfig `json:"tesseract" yaml:"tesseract"`
	PDF       PDFConfig       `json:"pdf" yaml:"pdf"`
}

// ConfigError reports invalid OCR language codes.
type ConfigError struct {
	Invalid []string
	Valid   []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid tesseract language(s): %s. Valid languages are: %s",
		strings.Join(e.Invalid, ", "), strings.Join(e.Valid, ", "))
}

// ParseConfig validates raw and returns a normalized copy. A nil raw config
// yields the defaults.
func ParseConfig(raw *ExtractorConfig) (*ExtractorConfig, error) {
	out := &ExtractorConfig{}
	if raw != nil {
		*out = *raw
	}

	var invalid []string
	seen := make(map[string]struct{})
	for _, code := range out.Tesseract.Languages {
		if SupportedLanguages.Contains(code) {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		invalid = append(invalid, code)
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, &ConfigError{Invalid: invalid, Valid: SupportedLanguages.List()}
	}

	if len(out.Tesseract.Languages) == 0 {
		out.Tesseract.Languages = []string{DefaultLanguage}
	} else {
		out.Tesseract.Languages = append([]string(nil), out.Tesseract.Languages...)
	}
	if out.PDF.OCRConcurrency < 1 {
		out.PDF.OCRConcurrency = 1
	}

	return out, nil
}
