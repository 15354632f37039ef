package core

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

var (
	magicZIP  = []byte("PK\x03\x04")
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// textSniffBytes bounds how much of a file is inspected to decide whether it
// is text at all.
const textSniffBytes = 8192

// DetectOptions configures Detect.
type DetectOptions struct {
	// LegacyEncoding wins when statistical detection has nothing to go on.
	LegacyEncoding Encoding
	// MaxFileSize rejects larger inputs; 0 disables the check.
	MaxFileSize int64
}

// Detect identifies the container format and, for text, the encoding of an
// input. It is a pure function of its arguments and either returns a definite
// RawFile or a *StageError.
func Detect(name string, data []byte, opts DetectOptions) (*RawFile, error) {
	if opts.MaxFileSize > 0 && int64(len(data)) > opts.MaxFileSize {
		return nil, &StageError{
			Stage:  StageDetect,
			Kind:   KindUnsupportedContainer,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(data), opts.MaxFileSize),
			Err:    ErrFileTooLarge,
		}
	}

	format, kind, err := DetectContainer(data, name)
	if err != nil {
		return nil, err
	}

	f := &RawFile{Name: name, Data: data, Format: format, Spreadsheet: kind}

	if format == FormatSpreadsheet {
		sheets, err := listSheets(data, kind)
		if err != nil {
			return nil, wrapStageErr(StageDetect, KindUnsupportedContainer, err)
		}
		f.Sheets = sheets
		return f, nil
	}

	f.Encoding, f.EncodingConfidence = DetectEncoding(data, opts.LegacyEncoding)
	return f, nil
}

// DetectContainer sniffs magic bytes to tell spreadsheets from delimited
// text. The file extension only breaks ties; a mislabeled upload is detected
// by content.
func DetectContainer(data []byte, name string) (ContainerFormat, SpreadsheetKind, error) {
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, bomUTF8))) == 0 {
		return "", SpreadsheetNone, stageErr(StageDetect, KindEmptyInput, "file %q has no content", name)
	}

	switch {
	case bytes.HasPrefix(data, magicZIP):
		return FormatSpreadsheet, SpreadsheetXLSX, nil
	case bytes.HasPrefix(data, magicOLE2):
		return FormatSpreadsheet, SpreadsheetXLS, nil
	}

	if looksLikeText(data) {
		return FormatDelimited, SpreadsheetNone, nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	return "", SpreadsheetNone, stageErr(StageDetect, KindUnsupportedContainer,
		"file %q (extension %q) is neither a workbook nor text", name, ext)
}

// looksLikeText reports whether the leading bytes contain no NULs and almost
// no control characters. UTF-16 with a BOM is accepted.
func looksLikeText(data []byte) bool {
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		return true
	}

	sample := data
	if len(sample) > textSniffBytes {
		sample = sample[:textSniffBytes]
	}

	control := 0
	for _, b := range sample {
		switch {
		case b == 0:
			return false
		case b == '\t' || b == '\n' || b == '\r' || b == '\f':
		case b < 0x20 || b == 0x7F:
			control++
		}
	}
	return control*100 <= len(sample)
}

func listSheets(data []byte, kind SpreadsheetKind) ([]string, error) {
	switch kind {
	case SpreadsheetXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx has no sheets")
		}
		return sheets, nil

	case SpreadsheetXLS:
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		if wb.NumSheets() == 0 {
			return nil, fmt.Errorf("xls has no sheets")
		}
		sheets := make([]string, 0, wb.NumSheets())
		for i := 0; i < wb.NumSheets(); i++ {
			if sheet := wb.GetSheet(i); sheet != nil {
				sheets = append(sheets, sheet.Name)
			}
		}
		return sheets, nil
	}
	return nil, fmt.Errorf("unknown spreadsheet kind %q", kind)
}

// legacyCandidates are tried, in order, when bytes are not valid UTF-8.
var legacyCandidates = []Encoding{EncodingWindows1251, EncodingKOI8R, EncodingWindows1252}

// DetectEncoding returns the text encoding of data and a confidence in [0, 1].
//
// A byte-order mark decides immediately. Valid UTF-8 is UTF-8. Otherwise each
// legacy 8-bit candidate is decoded and scored by how much the result looks
// like natural text; the best score wins and fallback breaks ties.
func DetectEncoding(data []byte, fallback Encoding) (Encoding, float64) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM, 1
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE, 1
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE, 1
	case utf8.Valid(data):
		return EncodingUTF8, 1
	}

	if fallback == "" {
		fallback = EncodingWindows1251
	}

	candidates := make([]Encoding, 0, len(legacyCandidates)+1)
	candidates = append(candidates, fallback)
	for _, c := range legacyCandidates {
		if c != fallback {
			candidates = append(candidates, c)
		}
	}

	best, bestScore, secondScore := fallback, 0.0, 0.0
	for _, enc := range candidates {
		dec := decoderFor(enc)
		if dec == nil {
			continue
		}
		text, err := dec.Bytes(data)
		if err != nil {
			continue
		}
		score := naturalTextScore(string(text))
		switch {
		case score > bestScore:
			secondScore = bestScore
			best, bestScore = enc, score
		case score > secondScore:
			secondScore = score
		}
	}

	if bestScore <= 0 {
		return fallback, 0
	}
	return best, bestScore / (bestScore + secondScore)
}

// DecodeText converts data in enc to a UTF-8 string without a BOM.
// Invalid sequences become U+FFFD.
func DecodeText(data []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingUTF8, EncodingUTF8BOM, "":
		return strings.ToValidUTF8(string(bytes.TrimPrefix(data, bomUTF8)), "\uFFFD"), nil
	}

	dec := decoderFor(enc)
	if dec == nil {
		return "", fmt.Errorf("unknown encoding %q", enc)
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	return strings.TrimPrefix(string(out), "\uFEFF"), nil
}

func decoderFor(enc Encoding) *encoding.Decoder {
	switch enc {
	case EncodingWindows1251:
		return charmap.Windows1251.NewDecoder()
	case EncodingKOI8R:
		return charmap.KOI8R.NewDecoder()
	case EncodingWindows1252:
		return charmap.Windows1252.NewDecoder()
	case EncodingUTF16LE:
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM).NewDecoder()
	case EncodingUTF16BE:
		return xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder()
	case EncodingUTF8, EncodingUTF8BOM:
		return xunicode.UTF8.NewDecoder()
	}
	return nil
}

// ParseEncoding maps a configured name to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "windows-1251", "cp1251":
		return EncodingWindows1251, nil
	case "koi8-r", "koi8r":
		return EncodingKOI8R, nil
	case "windows-1252", "cp1252", "latin1", "iso-8859-1":
		return EncodingWindows1252, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	}
	return "", fmt.Errorf("unsupported legacy encoding %q", name)
}

// russianLetterFreq holds approximate letter frequencies (percent) of
// Russian prose. Mis-decoded Cyrillic maps common letters onto rare ones, so
// the average weight separates the right code page from the wrong ones.
var russianLetterFreq = map[rune]float64{
	'о': 10.97, 'е': 8.45, 'а': 8.01, 'и': 7.35, 'н': 6.70, 'т': 6.26,
	'с': 5.47, 'р': 4.73, 'в': 4.54, 'л': 4.40, 'к': 3.49, 'м': 3.21,
	'д': 2.98, 'п': 2.81, 'у': 2.62, 'я': 2.01, 'ы': 1.90, 'ь': 1.74,
	'г': 1.70, 'з': 1.65, 'б': 1.59, 'ч': 1.44, 'й': 1.21, 'х': 0.97,
	'ж': 0.94, 'ш': 0.73, 'ю': 0.64, 'ц': 0.48, 'щ': 0.36, 'э': 0.32,
	'ф': 0.26, 'ъ': 0.04, 'ё': 0.04, 'і': 2.0, 'ї': 0.5, 'є': 0.5, 'ґ': 0.1,
}

// naturalTextScore rates decoded text by the non-ASCII letters it contains.
// Cyrillic words score by letter frequency and are penalised for unnatural
// casing (lower then upper inside a word). Accented Latin letters only score
// inside words that also carry ASCII letters. Replacement and control
// characters cost points.
func naturalTextScore(s string) float64 {
	score := 0.0
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != utf8.RuneError }) {
		var ascii, cyr, latinExt, bad int
		var weight float64
		unnaturalCase := false
		prevLower := false
		for _, r := range word {
			switch {
			case r == utf8.RuneError:
				bad++
				continue
			case r < utf8.RuneSelf:
				ascii++
			case unicode.Is(unicode.Cyrillic, r):
				cyr++
				weight += russianLetterFreq[unicode.ToLower(r)]
			default:
				latinExt++
			}
			if unicode.IsUpper(r) && prevLower {
				unnaturalCase = true
			}
			prevLower = unicode.IsLower(r)
		}

		score -= 2 * float64(bad)
		switch {
		case cyr > 0 && ascii == 0 && latinExt == 0:
			if unnaturalCase {
				score -= weight / 2
			} else {
				score += weight
			}
		case latinExt > 0 && ascii > 0 && cyr == 0:
			score += 3 * float64(latinExt)
		case latinExt > 0 && ascii == 0:
			score += 0.5 * float64(latinExt)
		}
	}
	return score
}
