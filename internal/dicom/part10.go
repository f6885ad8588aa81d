package dicom

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ExplicitVRLittleEndian is the only transfer syntax the archive ingests.
const ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

// StripPart10Header removes the 128 byte preamble, the "DICM" prefix and the
// File Meta Information group, returning the dataset bytes and the declared
// Transfer Syntax UID.
func StripPart10Header(data []byte) ([]byte, string, error) {
	if !HasPart10Header(data) {
		return nil, "", fmt.Errorf("not a DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	offset := 132
	var transferSyntaxUID string
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset:])
		element := binary.LittleEndian.Uint16(data[offset+2:])
		if group != 0x0002 {
			break
		}

		vr := VR(data[offset+4 : offset+6])
		var length int
		if vr.hasLongLength() {
			if offset+12 > len(data) {
				break
			}
			length = int(binary.LittleEndian.Uint32(data[offset+8:]))
			offset += 12
		} else {
			length = int(binary.LittleEndian.Uint16(data[offset+6:]))
			offset += 8
		}
		if offset+length > len(data) {
			return nil, "", fmt.Errorf("file meta element (0002,%04x) exceeds data", element)
		}
		if element == 0x0010 {
			transferSyntaxUID = strings.TrimRight(string(data[offset:offset+length]), "\x00 ")
		}
		offset += length
	}

	if offset >= len(data) {
		return nil, "", fmt.Errorf("failed to find dataset after File Meta Information")
	}
	return data[offset:], transferSyntaxUID, nil
}

// HasPart10Header reports whether data starts with the 128 byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	return len(data) >= 132 && string(data[128:132]) == "DICM"
}
