package dicom

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Codec converts attribute sets to and from the blobs persisted on every entity.
type Codec interface {
	Encode(attrs *Attributes) ([]byte, error)
	// Decode parses a blob. A non-nil filter limits the top-level elements returned.
	Decode(blob []byte, filter *AttributeFilter) (*Attributes, error)
}

const (
	undefinedLength = 0xFFFFFFFF
	maxShortLength  = 0xFFFF
)

// BinaryCodec stores attributes as an Explicit VR Little Endian dataset.
type BinaryCodec struct{}

// NewBinaryCodec creates the default blob codec.
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

// Encode writes attrs using its own Specific Character Set.
func (c *BinaryCodec) Encode(attrs *Attributes) ([]byte, error) {
	cs, err := LookupCharacterSet(attrs.SpecificCharacterSet())
	if err != nil {
		return nil, err
	}
	return appendDataset(nil, attrs, cs)
}

func appendDataset(buf []byte, attrs *Attributes, cs *CharacterSet) ([]byte, error) {
	for _, e := range attrs.Elements() {
		var err error
		if e.VR == VR_SQ {
			buf, err = appendSequence(buf, e, cs)
		} else {
			var value []byte
			value, err = encodeValue(e, cs)
			if err == nil {
				buf = appendHeader(buf, e.Tag, e.VR, uint32(len(value)))
				buf = append(buf, value...)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Tag, err)
		}
	}
	return buf, nil
}

func appendHeader(buf []byte, tag Tag, vr VR, length uint32) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, tag.Group())
	buf = binary.LittleEndian.AppendUint16(buf, tag.Element())
	buf = append(buf, vr[0], vr[1])
	if vr.hasLongLength() {
		buf = append(buf, 0, 0)
		return binary.LittleEndian.AppendUint32(buf, length)
	}
	return binary.LittleEndian.AppendUint16(buf, uint16(length))
}

func appendItemTag(buf []byte, tag Tag, length uint32) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, tag.Group())
	buf = binary.LittleEndian.AppendUint16(buf, tag.Element())
	return binary.LittleEndian.AppendUint32(buf, length)
}

// Sequences are always written with undefined length.
func appendSequence(buf []byte, e Element, cs *CharacterSet) ([]byte, error) {
	items, _ := e.Value.([]*Attributes)
	buf = appendHeader(buf, e.Tag, VR_SQ, undefinedLength)
	for _, item := range items {
		itemCS := cs
		if codes := item.SpecificCharacterSet(); len(codes) > 0 {
			var err error
			if itemCS, err = LookupCharacterSet(codes); err != nil {
				return nil, err
			}
		}
		buf = appendItemTag(buf, TagItem, undefinedLength)
		var err error
		if buf, err = appendDataset(buf, item, itemCS); err != nil {
			return nil, err
		}
		buf = appendItemTag(buf, TagItemDelimitationItem, 0)
	}
	return appendItemTag(buf, TagSequenceDelimitationItem, 0), nil
}

func encodeValue(e Element, cs *CharacterSet) ([]byte, error) {
	var out []byte
	switch v := e.Value.(type) {
	case []string:
		joined := strings.Join(v, `\`)
		if e.VR.UsesCharacterSet() {
			b, err := cs.Encode(joined)
			if err != nil {
				return nil, err
			}
			out = b
		} else {
			out = []byte(joined)
		}
	case []int:
		for _, n := range v {
			switch e.VR {
			case VR_US, VR_SS:
				out = binary.LittleEndian.AppendUint16(out, uint16(n))
			default:
				out = binary.LittleEndian.AppendUint32(out, uint32(n))
			}
		}
	case []byte:
		out = append(out, v...)
	case nil:
	default:
		return nil, fmt.Errorf("unsupported value type %T for VR %s", e.Value, e.VR)
	}
	if len(out)%2 != 0 {
		out = append(out, e.VR.paddingByte())
	}
	if !e.VR.hasLongLength() && len(out) > maxShortLength {
		return nil, fmt.Errorf("%d bytes exceed the %d byte limit of VR %s", len(out), maxShortLength, e.VR)
	}
	return out, nil
}

// Decode parses an Explicit VR Little Endian dataset.
func (c *BinaryCodec) Decode(blob []byte, filter *AttributeFilter) (*Attributes, error) {
	attrs, _, err := parseDataset(blob, 0, len(blob), &CharacterSet{}, filter, false)
	return attrs, err
}

// parseDataset reads elements in data[offset:end]. When inItem is set it stops
// after an Item Delimitation Item and returns the offset following it.
func parseDataset(data []byte, offset, end int, cs *CharacterSet, filter *AttributeFilter, inItem bool) (*Attributes, int, error) {
	attrs := NewAttributes(16)
	for offset < end {
		if offset+8 > end {
			return nil, offset, fmt.Errorf("truncated element header at offset %d", offset)
		}
		tag := NewTag(binary.LittleEndian.Uint16(data[offset:]), binary.LittleEndian.Uint16(data[offset+2:]))
		if tag == TagItemDelimitationItem {
			if !inItem {
				return nil, offset, fmt.Errorf("unexpected item delimiter at offset %d", offset)
			}
			return attrs, offset + 8, nil
		}
		vr := VR(data[offset+4 : offset+6])
		var length uint32
		if vr.hasLongLength() {
			if offset+12 > end {
				return nil, offset, fmt.Errorf("truncated element header at offset %d", offset)
			}
			length = binary.LittleEndian.Uint32(data[offset+8:])
			offset += 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6:]))
			offset += 8
		}

		if vr == VR_SQ {
			items, next, err := parseSequence(data, offset, end, length, cs)
			if err != nil {
				return nil, offset, fmt.Errorf("sequence %s: %w", tag, err)
			}
			offset = next
			if filter.Selects(tag) {
				attrs.set(Element{Tag: tag, VR: VR_SQ, Value: items})
			}
			continue
		}

		if length == undefinedLength || offset+int(length) > end {
			return nil, offset, fmt.Errorf("element %s: value length %d exceeds data", tag, length)
		}
		raw := data[offset : offset+int(length)]
		offset += int(length)

		if tag == TagSpecificCharacterSet {
			codes := splitValues(string(raw))
			next, err := LookupCharacterSet(codes)
			if err != nil {
				return nil, offset, err
			}
			cs = next
			attrs.set(Element{Tag: tag, VR: vr, Value: codes})
			continue
		}
		if !filter.Selects(tag) {
			continue
		}
		value, err := decodeValue(vr, raw, cs)
		if err != nil {
			return nil, offset, fmt.Errorf("element %s: %w", tag, err)
		}
		attrs.set(Element{Tag: tag, VR: vr, Value: value})
	}
	if inItem {
		return nil, offset, fmt.Errorf("missing item delimiter")
	}
	return attrs, offset, nil
}

func parseSequence(data []byte, offset, end int, length uint32, cs *CharacterSet) ([]*Attributes, int, error) {
	seqEnd := end
	if length != undefinedLength {
		if offset+int(length) > end {
			return nil, offset, fmt.Errorf("length %d exceeds data", length)
		}
		seqEnd = offset + int(length)
	}
	var items []*Attributes
	for offset < seqEnd {
		if offset+8 > seqEnd {
			return nil, offset, fmt.Errorf("truncated item header at offset %d", offset)
		}
		tag := NewTag(binary.LittleEndian.Uint16(data[offset:]), binary.LittleEndian.Uint16(data[offset+2:]))
		itemLength := binary.LittleEndian.Uint32(data[offset+4:])
		offset += 8
		switch tag {
		case TagSequenceDelimitationItem:
			return items, offset, nil
		case TagItem:
		default:
			return nil, offset, fmt.Errorf("unexpected tag %s in sequence", tag)
		}
		var (
			item *Attributes
			err  error
		)
		if itemLength == undefinedLength {
			item, offset, err = parseDataset(data, offset, seqEnd, cs, nil, true)
		} else {
			if offset+int(itemLength) > seqEnd {
				return nil, offset, fmt.Errorf("item length %d exceeds sequence", itemLength)
			}
			item, _, err = parseDataset(data, offset, offset+int(itemLength), cs, nil, false)
			offset += int(itemLength)
		}
		if err != nil {
			return nil, offset, err
		}
		items = append(items, item)
	}
	if length == undefinedLength {
		return nil, offset, fmt.Errorf("missing sequence delimiter")
	}
	return items, offset, nil
}

func decodeValue(vr VR, raw []byte, cs *CharacterSet) (interface{}, error) {
	switch {
	case vr.IsInt():
		size := 4
		if vr == VR_US || vr == VR_SS {
			size = 2
		}
		if len(raw)%size != 0 {
			return nil, fmt.Errorf("length %d is not a multiple of %d", len(raw), size)
		}
		values := make([]int, 0, len(raw)/size)
		for i := 0; i < len(raw); i += size {
			switch vr {
			case VR_US:
				values = append(values, int(binary.LittleEndian.Uint16(raw[i:])))
			case VR_SS:
				values = append(values, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
			case VR_UL:
				values = append(values, int(binary.LittleEndian.Uint32(raw[i:])))
			default:
				values = append(values, int(int32(binary.LittleEndian.Uint32(raw[i:]))))
			}
		}
		return values, nil
	case vr.IsText():
		s := string(raw)
		if vr.UsesCharacterSet() {
			var err error
			if s, err = cs.Decode(raw); err != nil {
				return nil, err
			}
		}
		s = strings.TrimRight(s, "\x00 ")
		if s == "" {
			return []string{}, nil
		}
		if !vr.IsMultiValued() {
			return []string{s}, nil
		}
		return strings.Split(s, `\`), nil
	default:
		return append([]byte(nil), raw...), nil
	}
}

func splitValues(s string) []string {
	parts := strings.Split(strings.TrimRight(s, "\x00 "), `\`)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
