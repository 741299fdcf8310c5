package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoding selects how source bytes are decoded.
type Encoding string

const (
	EncodingAuto     Encoding = "auto"
	EncodingUTF8     Encoding = "utf-8"
	EncodingShiftJIS Encoding = "shift_jis"
)

// ParseEncoding accepts the configured encoding name; empty means auto.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "shift_jis", "shift-jis", "sjis", "cp932", "windows-31j":
		return EncodingShiftJIS, nil
	default:
		return "", fmt.Errorf("unknown encoding %q (use auto|utf-8|shift_jis)", s)
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode returns UTF-8 text. Auto keeps valid UTF-8 as is and treats anything
// else as Shift_JIS, which is what the clinic systems export by default.
func decode(content []byte, enc Encoding) ([]byte, error) {
	if bytes.HasPrefix(content, utf8BOM) {
		return content[len(utf8BOM):], nil
	}
	switch enc {
	case EncodingUTF8:
		return content, nil
	case EncodingShiftJIS:
		return fromShiftJIS(content)
	default:
		if utf8.Valid(content) {
			return content, nil
		}
		return fromShiftJIS(content)
	}
}

func fromShiftJIS(content []byte) ([]byte, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), content)
	if err != nil {
		return nil, fmt.Errorf("decode shift_jis: %w", err)
	}
	return out, nil
}
