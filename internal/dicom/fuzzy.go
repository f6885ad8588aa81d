package dicom

import (
	"fmt"
	"strings"
	"unicode"
)

// FuzzyStr derives a phonetic code from a name component.
type FuzzyStr interface {
	ToFuzzy(s string) string
}

// NoFuzzyValue is stored when a name component is absent.
const NoFuzzyValue = "*"

var soundexCodes = [26]byte{
	//A  B    C    D    E  F    G    H  I  J    K    L    M    N    O  P    Q    R    S    T    U  V    W  X    Y  Z
	0, '1', '2', '3', 0, '1', '2', 0, 0, '2', '2', '4', '5', '5', 0, '1', '2', '6', '2', '3', 0, '1', 0, '2', 0, '2',
}

// Soundex is the classic four character American Soundex.
type Soundex struct{}

func (Soundex) ToFuzzy(s string) string {
	return soundex(s, 4, true)
}

// ESoundex is Soundex without the length limit and zero padding.
type ESoundex struct{}

func (ESoundex) ToFuzzy(s string) string {
	return soundex(s, 0, false)
}

// NewFuzzyStr returns the algorithm registered under name.
func NewFuzzyStr(name string) (FuzzyStr, error) {
	switch strings.ToLower(name) {
	case "", "soundex":
		return Soundex{}, nil
	case "esoundex":
		return ESoundex{}, nil
	default:
		return nil, fmt.Errorf("unknown fuzzy algorithm %q", name)
	}
}

func soundex(s string, maxLen int, pad bool) string {
	var out []byte
	var last byte
	for _, r := range strings.ToUpper(s) {
		if r > unicode.MaxASCII || r < 'A' || r > 'Z' {
			continue
		}
		code := soundexCodes[r-'A']
		if out == nil {
			out = append(out, byte(r))
			last = code
			continue
		}
		switch {
		case r == 'H' || r == 'W':
			// H and W do not separate letters with the same code.
		case code == 0:
			last = 0
		case code != last:
			out = append(out, code)
			last = code
		}
		if maxLen > 0 && len(out) == maxLen {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	for pad && len(out) < maxLen {
		out = append(out, '0')
	}
	return string(out)
}

// PersonNameFuzzy returns the fuzzy codes of the family and given name
// components of the alphabetic group of a PN value.
func PersonNameFuzzy(pn string, f FuzzyStr) (family, given string) {
	alphabetic, _, _ := strings.Cut(pn, "=")
	parts := strings.Split(alphabetic, "^")
	family, given = NoFuzzyValue, NoFuzzyValue
	if len(parts) > 0 {
		if code := f.ToFuzzy(parts[0]); code != "" {
			family = code
		}
	}
	if len(parts) > 1 {
		if code := f.ToFuzzy(parts[1]); code != "" {
			given = code
		}
	}
	return family, given
}
