package reader

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// utf8BOM is the byte order mark Windows tools put in front of UTF-8 files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errInvalidUTF8 = errors.New("invalid UTF-8")

// textEncoding decodes raw file bytes into UTF-8.
type textEncoding struct {
	name   string
	decode func([]byte) ([]byte, error)
}

// candidateEncodings are tried in order. Strict UTF-8 comes first so that
// genuine UTF-8 is never reinterpreted; the single-byte charsets after it
// accept any input.
var candidateEncodings = []textEncoding{
	{name: "utf-8", decode: decodeUTF8},
	{name: "latin-1", decode: decodeCharmap(charmap.ISO8859_1)},
	{name: "cp1252", decode: decodeCharmap(charmap.Windows1252)},
	{name: "iso-8859-1", decode: decodeCharmap(charmap.ISO8859_1)},
}

// decodeCharmap returns a decoder func for a single-byte charset.
// Decoders carry state, so each call gets its own.
func decodeCharmap(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return cm.NewDecoder().Bytes(data)
	}
}

func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	return data, nil
}

// stripBOM removes a leading UTF-8 byte order mark.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
// Used by the last-resort parse when no encoding/delimiter pair fits.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
