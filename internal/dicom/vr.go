package dicom

// VR is the value representation of a data element.
type VR string

// VR (Value Representation) constants for DICOM data elements
const (
	VR_AE VR = "AE" // Application Entity
	VR_AS VR = "AS" // Age String
	VR_AT VR = "AT" // Attribute Tag
	VR_CS VR = "CS" // Code String
	VR_DA VR = "DA" // Date
	VR_DS VR = "DS" // Decimal String
	VR_DT VR = "DT" // Date Time
	VR_FL VR = "FL" // Floating Point Single
	VR_FD VR = "FD" // Floating Point Double
	VR_IS VR = "IS" // Integer String
	VR_LO VR = "LO" // Long String
	VR_LT VR = "LT" // Long Text
	VR_OB VR = "OB" // Other Byte
	VR_OD VR = "OD" // Other Double
	VR_OF VR = "OF" // Other Float
	VR_OL VR = "OL" // Other Long
	VR_OV VR = "OV" // Other Very Long
	VR_OW VR = "OW" // Other Word
	VR_PN VR = "PN" // Person Name
	VR_SH VR = "SH" // Short String
	VR_SL VR = "SL" // Signed Long
	VR_SQ VR = "SQ" // Sequence of Items
	VR_SS VR = "SS" // Signed Short
	VR_ST VR = "ST" // Short Text
	VR_SV VR = "SV" // Signed Very Long
	VR_TM VR = "TM" // Time
	VR_UC VR = "UC" // Unlimited Characters
	VR_UI VR = "UI" // Unique Identifier
	VR_UL VR = "UL" // Unsigned Long
	VR_UN VR = "UN" // Unknown
	VR_UR VR = "UR" // Universal Resource
	VR_US VR = "US" // Unsigned Short
	VR_UT VR = "UT" // Unlimited Text
	VR_UV VR = "UV" // Unsigned Very Long
)

// IsText reports whether values of this VR are character strings.
func (vr VR) IsText() bool {
	switch vr {
	case VR_AE, VR_AS, VR_CS, VR_DA, VR_DS, VR_DT, VR_IS, VR_LO, VR_LT,
		VR_PN, VR_SH, VR_ST, VR_TM, VR_UC, VR_UI, VR_UR, VR_UT:
		return true
	}
	return false
}

// IsInt reports whether values of this VR are fixed-size binary integers.
func (vr VR) IsInt() bool {
	switch vr {
	case VR_US, VR_SS, VR_UL, VR_SL:
		return true
	}
	return false
}

// UsesCharacterSet reports whether values of this VR are affected by the
// Specific Character Set of the dataset. All other text VRs are plain ASCII.
func (vr VR) UsesCharacterSet() bool {
	switch vr {
	case VR_LO, VR_LT, VR_PN, VR_SH, VR_ST, VR_UC, VR_UT:
		return true
	}
	return false
}

// IsMultiValued reports whether a backslash separates multiple values.
func (vr VR) IsMultiValued() bool {
	switch vr {
	case VR_LT, VR_ST, VR_UT, VR_UR:
		return false
	}
	return vr.IsText()
}

// IsDateTime reports whether the VR supports range matching.
func (vr VR) IsDateTime() bool {
	return vr == VR_DA || vr == VR_TM || vr == VR_DT
}

// hasLongLength reports whether the explicit VR encoding uses a 2 byte reserved
// field followed by a 4 byte length.
func (vr VR) hasLongLength() bool {
	switch vr {
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OV, VR_OW, VR_SQ, VR_SV, VR_UC, VR_UN, VR_UR, VR_UT, VR_UV:
		return true
	}
	return false
}

func (vr VR) paddingByte() byte {
	if vr == VR_UI || !vr.IsText() {
		return 0x00
	}
	return ' '
}
