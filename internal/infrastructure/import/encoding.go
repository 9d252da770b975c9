package csvimport

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Encoding names reported for decoded exports
const (
	EncodingAuto        = "auto"
	EncodingWindows1252 = "windows-1252"
	EncodingUTF8        = "utf-8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns raw export bytes into text. With "auto" (or empty) the
// Windows-1252 reading is tried first and UTF-8 second; a declared encoding
// is the only one tried. Returns the canonical name of the encoding used.
func Decode(data []byte, declared string) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		if declared == "" || strings.EqualFold(declared, EncodingAuto) {
			declared = EncodingUTF8
		}
	}

	if declared != "" && !strings.EqualFold(declared, EncodingAuto) {
		return decodeDeclared(data, declared)
	}

	if text, ok := decodeWindows1252(data); ok {
		return text, EncodingWindows1252, nil
	}
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}
	return "", "", &EncodingError{
		Encoding: EncodingAuto,
		Tried:    []string{EncodingWindows1252, EncodingUTF8},
		Reason:   "no candidate produced usable text",
	}
}

// decodeWindows1252 rejects the single-byte reading when it is unusable:
// replacement characters in the output, or bytes that are really multi-byte
// UTF-8 and would come out double-encoded.
func decodeWindows1252(data []byte) (string, bool) {
	if hasHighBytes(data) && utf8.Valid(data) {
		return "", false
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func decodeDeclared(data []byte, declared string) (string, string, error) {
	enc, err := htmlindex.Get(declared)
	if err != nil {
		return "", "", &EncodingError{Encoding: declared, Reason: "unsupported encoding"}
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(declared)
	}

	if name == EncodingUTF8 {
		if !utf8.Valid(data) {
			return "", "", &EncodingError{Encoding: name, Reason: "invalid UTF-8 byte sequence"}
		}
		return string(data), name, nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", &EncodingError{Encoding: name, Reason: err.Error()}
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", "", &EncodingError{Encoding: name, Reason: "undecodable bytes"}
	}
	return string(out), name, nil
}

func hasHighBytes(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return true
		}
	}
	return false
}
