package dicom

import "strings"

// Issuer identifies the authority that assigned an identifier. Any component
// may be empty.
type Issuer struct {
	LocalNamespaceEntityID string
	UniversalEntityID      string
	UniversalEntityIDType  string
}

// IsEmpty reports whether no component is set.
func (i *Issuer) IsEmpty() bool {
	return i == nil || i.LocalNamespaceEntityID == "" && i.UniversalEntityID == ""
}

// Matches reports whether two issuers may denote the same authority. A missing
// component is a wildcard; only a component present on both sides with
// different values is a mismatch.
func (i *Issuer) Matches(other *Issuer) bool {
	if i.IsEmpty() || other.IsEmpty() {
		return true
	}
	if i.LocalNamespaceEntityID != "" && other.LocalNamespaceEntityID != "" &&
		i.LocalNamespaceEntityID != other.LocalNamespaceEntityID {
		return false
	}
	if i.UniversalEntityID != "" && other.UniversalEntityID != "" {
		if i.UniversalEntityID != other.UniversalEntityID {
			return false
		}
		if i.UniversalEntityIDType != "" && other.UniversalEntityIDType != "" &&
			i.UniversalEntityIDType != other.UniversalEntityIDType {
			return false
		}
	}
	return true
}

// String renders the issuer as an HL7 HD component: local&universal&type.
func (i *Issuer) String() string {
	if i == nil {
		return ""
	}
	if i.UniversalEntityID == "" {
		return i.LocalNamespaceEntityID
	}
	return i.LocalNamespaceEntityID + "&" + i.UniversalEntityID + "&" + i.UniversalEntityIDType
}

// ParseIssuer reads the local&universal&type form produced by String.
func ParseIssuer(s string) *Issuer {
	parts := strings.SplitN(strings.TrimSpace(s), "&", 3)
	issuer := &Issuer{LocalNamespaceEntityID: parts[0]}
	if len(parts) > 1 {
		issuer.UniversalEntityID = parts[1]
	}
	if len(parts) > 2 {
		issuer.UniversalEntityIDType = parts[2]
	}
	if issuer.IsEmpty() {
		return nil
	}
	return issuer
}

// IssuerOfPatientID extracts the issuer from (0010,0021) and the first item of
// (0010,0024). It returns nil when neither is present.
func IssuerOfPatientID(attrs *Attributes) *Issuer {
	issuer := &Issuer{LocalNamespaceEntityID: attrs.GetString(TagIssuerOfPatientID)}
	if items := attrs.GetSequence(TagIssuerOfPatientIDQualifiersSequence); len(items) > 0 {
		issuer.UniversalEntityID = items[0].GetString(TagUniversalEntityID)
		issuer.UniversalEntityIDType = items[0].GetString(TagUniversalEntityIDType)
	}
	if issuer.IsEmpty() {
		return nil
	}
	return issuer
}

// SetIssuerOfPatientID writes the issuer into attrs, replacing any existing one.
func SetIssuerOfPatientID(attrs *Attributes, issuer *Issuer) {
	attrs.Remove(TagIssuerOfPatientID)
	attrs.Remove(TagIssuerOfPatientIDQualifiersSequence)
	if issuer.IsEmpty() {
		return
	}
	if issuer.LocalNamespaceEntityID != "" {
		attrs.SetString(TagIssuerOfPatientID, VR_LO, issuer.LocalNamespaceEntityID)
	}
	if issuer.UniversalEntityID != "" {
		item := NewAttributes(2)
		item.SetString(TagUniversalEntityID, VR_UT, issuer.UniversalEntityID)
		if issuer.UniversalEntityIDType != "" {
			item.SetString(TagUniversalEntityIDType, VR_CS, issuer.UniversalEntityIDType)
		}
		attrs.SetSequence(TagIssuerOfPatientIDQualifiersSequence, item)
	}
}

// IDWithIssuer is a patient identifier qualified by an optional issuer.
type IDWithIssuer struct {
	ID     string
	Issuer *Issuer
}

// PatientIDOf extracts the patient identifier, or nil if attrs has no Patient ID.
func PatientIDOf(attrs *Attributes) *IDWithIssuer {
	id := attrs.GetString(TagPatientID)
	if id == "" {
		return nil
	}
	return &IDWithIssuer{ID: id, Issuer: IssuerOfPatientID(attrs)}
}

// Matches reports whether both identifiers have the same id and compatible issuers.
func (p *IDWithIssuer) Matches(other *IDWithIssuer) bool {
	return p != nil && other != nil && p.ID == other.ID && p.Issuer.Matches(other.Issuer)
}

// String returns the id in HL7 CX form, or "" for a nil identifier.
func (p *IDWithIssuer) String() string {
	if p == nil {
		return ""
	}
	if p.Issuer.IsEmpty() {
		return p.ID
	}
	return p.ID + "^^^" + p.Issuer.String()
}
