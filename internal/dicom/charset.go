package dicom

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupportedCharacterSet is returned for Specific Character Set values
// this archive cannot decode, including ISO 2022 code extensions.
var ErrUnsupportedCharacterSet = errors.New("dicom: unsupported specific character set")

// CharsetUTF8 is the defined term for Unicode in UTF-8.
const CharsetUTF8 = "ISO_IR 192"

// CharsetLatin1 is the defined term for ISO 8859-1.
const CharsetLatin1 = "ISO_IR 100"

var characterSets = map[string]encoding.Encoding{
	"ISO_IR 100": charmap.ISO8859_1,
	"ISO_IR 101": charmap.ISO8859_2,
	"ISO_IR 109": charmap.ISO8859_3,
	"ISO_IR 110": charmap.ISO8859_4,
	"ISO_IR 144": charmap.ISO8859_5,
	"ISO_IR 127": charmap.ISO8859_6,
	"ISO_IR 126": charmap.ISO8859_7,
	"ISO_IR 138": charmap.ISO8859_8,
	"ISO_IR 148": charmap.ISO8859_9,
	"ISO_IR 203": charmap.ISO8859_15,
	"ISO_IR 166": charmap.Windows874,
	"ISO_IR 13":  japanese.ShiftJIS,
	"ISO_IR 149": korean.EUCKR,
	"ISO_IR 192": unicode.UTF8,
	"GB18030":    simplifiedchinese.GB18030,
	"GBK":        simplifiedchinese.GBK,
}

// CharacterSet converts between a declared Specific Character Set and Go strings.
type CharacterSet struct {
	codes []string
	enc   encoding.Encoding // nil for the default repertoire
}

// LookupCharacterSet resolves the declared terms of (0008,0005).
func LookupCharacterSet(codes []string) (*CharacterSet, error) {
	codes = normalizeCharset(codes)
	switch len(codes) {
	case 0:
		return &CharacterSet{}, nil
	case 1:
		enc, ok := characterSets[codes[0]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharacterSet, codes[0])
		}
		return &CharacterSet{codes: codes, enc: enc}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCharacterSet, strings.Join(codes, `\`))
	}
}

// Codes returns the declared terms; empty for the default repertoire.
func (cs *CharacterSet) Codes() []string { return cs.codes }

// IsDefault reports whether this is the default (ASCII) repertoire.
func (cs *CharacterSet) IsDefault() bool { return cs.enc == nil }

// Decode converts encoded bytes to a string. Bytes outside the default
// repertoire are read as ISO 8859-1 so that nothing is lost.
func (cs *CharacterSet) Decode(b []byte) (string, error) {
	if cs.enc == nil {
		if isASCII(b) {
			return string(b), nil
		}
		return charmap.ISO8859_1.NewDecoder().String(string(b))
	}
	if cs.enc == unicode.UTF8 {
		if !utf8.Valid(b) {
			return "", fmt.Errorf("dicom: invalid UTF-8 value")
		}
		return string(b), nil
	}
	return cs.enc.NewDecoder().String(string(b))
}

// Encode converts a string to the declared character set.
func (cs *CharacterSet) Encode(s string) ([]byte, error) {
	if cs.enc == nil {
		if !isASCII([]byte(s)) {
			return nil, fmt.Errorf("dicom: value %q not representable in default repertoire", s)
		}
		return []byte(s), nil
	}
	out, err := cs.enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("dicom: value %q not representable in %s: %w", s, cs.codes[0], err)
	}
	return []byte(out), nil
}

// CanEncode reports whether s is representable in this character set.
func (cs *CharacterSet) CanEncode(s string) bool {
	_, err := cs.Encode(s)
	return err == nil
}

// UnifiedCharacterSet returns the single declaration under which the values of
// all given sets can be represented. Identical non-default declarations are
// kept. When one side uses a non-default set and every value of the other side
// fits in it, that set is used. Default declarations holding values outside
// the default repertoire become ISO_IR 100 when that covers them. Anything
// else is unified to UTF-8.
func UnifiedCharacterSet(sets ...*Attributes) []string {
	var candidate []string
	seen := false
	differ := false
	for _, attrs := range sets {
		if attrs == nil {
			continue
		}
		codes := normalizeCharset(attrs.SpecificCharacterSet())
		if !seen {
			candidate, seen = codes, true
			continue
		}
		if equalCodes(codes, candidate) {
			continue
		}
		differ = true
		if len(candidate) == 0 {
			candidate = codes
		} else if len(codes) != 0 {
			return []string{CharsetUTF8}
		}
	}
	if !differ && len(candidate) != 0 {
		return candidate
	}
	cs, err := LookupCharacterSet(candidate)
	if err != nil {
		return []string{CharsetUTF8}
	}
	if allEncodableIn(sets, cs) {
		return candidate
	}
	if cs.IsDefault() {
		latin1, _ := LookupCharacterSet([]string{CharsetLatin1})
		if allEncodableIn(sets, latin1) {
			return []string{CharsetLatin1}
		}
	}
	return []string{CharsetUTF8}
}

// UnifyCharacterSets applies UnifiedCharacterSet to every given set.
func UnifyCharacterSets(sets ...*Attributes) {
	codes := UnifiedCharacterSet(sets...)
	for _, attrs := range sets {
		if attrs != nil {
			attrs.SetSpecificCharacterSet(codes...)
		}
	}
}

func allEncodableIn(sets []*Attributes, cs *CharacterSet) bool {
	for _, attrs := range sets {
		if attrs != nil && !encodableIn(attrs, cs) {
			return false
		}
	}
	return true
}

func encodableIn(attrs *Attributes, cs *CharacterSet) bool {
	for _, e := range attrs.Elements() {
		switch v := e.Value.(type) {
		case []string:
			if !e.VR.UsesCharacterSet() {
				continue
			}
			for _, s := range v {
				if !cs.CanEncode(s) {
					return false
				}
			}
		case []*Attributes:
			for _, item := range v {
				if !encodableIn(item, cs) {
					return false
				}
			}
		}
	}
	return true
}

func normalizeCharset(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || c == "ISO_IR 6" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func equalCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
