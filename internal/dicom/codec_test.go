package dicom

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStudy() *Attributes {
	attrs := NewAttributes(8)
	attrs.SetSpecificCharacterSet("ISO_IR 100")
	attrs.SetString(TagStudyDate, VR_DA, "20240131")
	attrs.SetString(TagModalitiesInStudy, VR_CS, "CT", "MR")
	attrs.SetString(TagStudyDescription, VR_LO, "Schädel")
	attrs.SetString(TagPatientName, VR_PN, "Müller^Hans")
	attrs.SetString(TagStudyInstanceUID, VR_UI, "1.2.840.1")
	attrs.SetInt(TagNumberOfStudyRelatedSeries, VR_US, 7)
	issuer := NewAttributes(2)
	issuer.SetString(TagUniversalEntityID, VR_UT, "1.2.3.4")
	issuer.SetString(TagUniversalEntityIDType, VR_CS, "ISO")
	attrs.SetSequence(TagIssuerOfPatientIDQualifiersSequence, issuer)
	return attrs
}

func TestBinaryCodec_RoundTrip(t *testing.T) {
	codec := NewBinaryCodec()
	blob, err := codec.Encode(sampleStudy())
	require.NoError(t, err)
	assert.Zero(t, len(blob)%2)

	decoded, err := codec.Decode(blob, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ISO_IR 100"}, decoded.SpecificCharacterSet())
	assert.Equal(t, "20240131", decoded.GetString(TagStudyDate))
	assert.Equal(t, []string{"CT", "MR"}, decoded.GetStrings(TagModalitiesInStudy))
	assert.Equal(t, "Schädel", decoded.GetString(TagStudyDescription))
	assert.Equal(t, "Müller^Hans", decoded.GetString(TagPatientName))
	assert.Equal(t, "1.2.840.1", decoded.GetString(TagStudyInstanceUID))
	assert.Equal(t, 7, decoded.GetInt(TagNumberOfStudyRelatedSeries, 0))

	items := decoded.GetSequence(TagIssuerOfPatientIDQualifiersSequence)
	require.Len(t, items, 1)
	assert.Equal(t, "1.2.3.4", items[0].GetString(TagUniversalEntityID))
	assert.Equal(t, "ISO", items[0].GetString(TagUniversalEntityIDType))
}

func TestBinaryCodec_DecodeWithFilter(t *testing.T) {
	codec := NewBinaryCodec()
	blob, err := codec.Encode(sampleStudy())
	require.NoError(t, err)

	decoded, err := codec.Decode(blob, NewAttributeFilter(TagStudyInstanceUID))
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Size())
	assert.True(t, decoded.Contains(TagSpecificCharacterSet))
	assert.True(t, decoded.Contains(TagStudyInstanceUID))
}

func TestBinaryCodec_DefinedLengthSequence(t *testing.T) {
	// (0010,0024) SQ with an explicit length holding one item of explicit length.
	var item []byte
	item = appendHeader(item, TagUniversalEntityID, VR_UT, 4)
	item = append(item, "1.23"...)

	var seq []byte
	seq = appendItemTag(seq, TagItem, uint32(len(item)))
	seq = append(seq, item...)

	var blob []byte
	blob = appendHeader(blob, TagIssuerOfPatientIDQualifiersSequence, VR_SQ, uint32(len(seq)))
	blob = append(blob, seq...)

	decoded, err := NewBinaryCodec().Decode(blob, nil)
	require.NoError(t, err)
	items := decoded.GetSequence(TagIssuerOfPatientIDQualifiersSequence)
	require.Len(t, items, 1)
	assert.Equal(t, "1.23", items[0].GetString(TagUniversalEntityID))
}

func TestBinaryCodec_RejectsCorruptBlob(t *testing.T) {
	codec := NewBinaryCodec()
	blob, err := codec.Encode(sampleStudy())
	require.NoError(t, err)

	_, err = codec.Decode(blob[:len(blob)-3], nil)
	assert.Error(t, err)

	bad := make([]byte, 8)
	binary.LittleEndian.PutUint16(bad[0:], 0x0010)
	binary.LittleEndian.PutUint16(bad[2:], 0x0010)
	copy(bad[4:], "PN")
	binary.LittleEndian.PutUint16(bad[6:], 200)
	_, err = codec.Decode(bad, nil)
	assert.Error(t, err)
}

func TestBinaryCodec_EncodeFailsOutsideCharacterSet(t *testing.T) {
	attrs := NewAttributes(1)
	attrs.SetString(TagPatientName, VR_PN, "Иванов")
	_, err := NewBinaryCodec().Encode(attrs)
	assert.Error(t, err)
}

func TestBinaryCodec_EncodeRejectsOversizedShortLengthValue(t *testing.T) {
	long := strings.Repeat("A", 70000)

	attrs := NewAttributes(1)
	attrs.SetString(TagStudyDescription, VR_LO, long)
	_, err := NewBinaryCodec().Encode(attrs)
	assert.ErrorContains(t, err, "byte limit of VR LO")

	item := NewAttributes(1)
	item.SetString(TagStudyDescription, VR_LO, long)
	nested := NewAttributes(1)
	nested.SetSequence(TagIssuerOfPatientIDQualifiersSequence, item)
	_, err = NewBinaryCodec().Encode(nested)
	assert.Error(t, err)

	text := NewAttributes(1)
	text.SetString(TagStudyDescription, VR_UT, long)
	blob, err := NewBinaryCodec().Encode(text)
	require.NoError(t, err)
	decoded, err := NewBinaryCodec().Decode(blob, nil)
	require.NoError(t, err)
	assert.Equal(t, long, decoded.GetString(TagStudyDescription))
}

func TestStripPart10Header(t *testing.T) {
	dataset, err := NewBinaryCodec().Encode(sampleStudy())
	require.NoError(t, err)

	file := make([]byte, 128)
	file = append(file, "DICM"...)
	ts := ExplicitVRLittleEndian
	if len(ts)%2 != 0 {
		ts += "\x00"
	}
	file = appendHeader(file, NewTag(0x0002, 0x0010), VR_UI, uint32(len(ts)))
	file = append(file, ts...)
	file = append(file, dataset...)

	got, tsuid, err := StripPart10Header(file)
	require.NoError(t, err)
	assert.Equal(t, ExplicitVRLittleEndian, tsuid)
	assert.Equal(t, dataset, got)

	_, _, err = StripPart10Header(dataset)
	assert.Error(t, err)
}
