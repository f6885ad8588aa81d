package mappers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"imaging-archive-service/internal/dicom"
)

// DicomJSONElement is one attribute of the DICOM JSON model (PS3.18 F.2).
type DicomJSONElement struct {
	VR           string        `json:"vr"`
	Value        []interface{} `json:"Value,omitempty"`
	InlineBinary string        `json:"InlineBinary,omitempty"`
}

// DicomJSONPersonName is the JSON form of one PN value.
type DicomJSONPersonName struct {
	Alphabetic  string `json:"Alphabetic,omitempty"`
	Ideographic string `json:"Ideographic,omitempty"`
	Phonetic    string `json:"Phonetic,omitempty"`
}

// DicomJSONObject maps the eight-digit hex tag to its element.
type DicomJSONObject map[string]DicomJSONElement

// MapAttributesToDicomJSON converts an attribute set to a DICOM JSON object.
func MapAttributesToDicomJSON(attrs *dicom.Attributes) (json.RawMessage, error) {
	obj, err := toObject(attrs)
	if err != nil {
		return nil, err
	}
	rawJSON, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("error marshalling DICOM JSON object: %w", err)
	}
	return rawJSON, nil
}

func toObject(attrs *dicom.Attributes) (DicomJSONObject, error) {
	obj := make(DicomJSONObject, attrs.Size())
	for _, e := range attrs.Elements() {
		elem, err := toElement(e)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", e.Tag, err)
		}
		obj[e.Tag.Hex()] = elem
	}
	return obj, nil
}

func toElement(e dicom.Element) (DicomJSONElement, error) {
	elem := DicomJSONElement{VR: string(e.VR)}
	switch v := e.Value.(type) {
	case nil:
	case []*dicom.Attributes:
		for _, item := range v {
			obj, err := toObject(item)
			if err != nil {
				return elem, err
			}
			elem.Value = append(elem.Value, obj)
		}
	case []int:
		for _, n := range v {
			elem.Value = append(elem.Value, n)
		}
	case []string:
		for _, s := range v {
			value, err := stringValue(e.VR, s)
			if err != nil {
				return elem, err
			}
			elem.Value = append(elem.Value, value)
		}
	case []byte:
		if len(v) > 0 {
			elem.InlineBinary = base64.StdEncoding.EncodeToString(v)
		}
	default:
		return elem, fmt.Errorf("unsupported value type %T", e.Value)
	}
	return elem, nil
}

// stringValue converts one text value. Empty values become null; IS and DS
// are written as numbers.
func stringValue(vr dicom.VR, s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	switch vr {
	case dicom.VR_PN:
		groups := strings.SplitN(s, "=", 3)
		pn := DicomJSONPersonName{Alphabetic: groups[0]}
		if len(groups) > 1 {
			pn.Ideographic = groups[1]
		}
		if len(groups) > 2 {
			pn.Phonetic = groups[2]
		}
		return pn, nil
	case dicom.VR_IS:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid IS value %q: %w", s, err)
		}
		return n, nil
	case dicom.VR_DS:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DS value %q: %w", s, err)
		}
		return f, nil
	}
	return s, nil
}
