package dicom

import (
	"sort"
	"strconv"
	"strings"
)

// Element is a single data element. Value holds []string for text VRs, []int
// for binary integer VRs, []*Attributes for sequences and []byte otherwise.
type Element struct {
	Tag   Tag
	VR    VR
	Value interface{}
}

// Attributes is an ordered attribute set. Elements are always kept sorted by tag.
type Attributes struct {
	elements []Element
}

// NewAttributes creates an empty attribute set with room for capacity elements.
func NewAttributes(capacity int) *Attributes {
	return &Attributes{elements: make([]Element, 0, capacity)}
}

// Size returns the number of elements.
func (a *Attributes) Size() int {
	if a == nil {
		return 0
	}
	return len(a.elements)
}

// Elements returns the elements in tag order. The slice must not be modified.
func (a *Attributes) Elements() []Element {
	if a == nil {
		return nil
	}
	return a.elements
}

func (a *Attributes) indexOf(tag Tag) (int, bool) {
	i := sort.Search(len(a.elements), func(i int) bool { return a.elements[i].Tag >= tag })
	return i, i < len(a.elements) && a.elements[i].Tag == tag
}

// Get returns the element with the given tag.
func (a *Attributes) Get(tag Tag) (Element, bool) {
	if a == nil {
		return Element{}, false
	}
	i, ok := a.indexOf(tag)
	if !ok {
		return Element{}, false
	}
	return a.elements[i], true
}

// Contains reports whether the tag is present.
func (a *Attributes) Contains(tag Tag) bool {
	_, ok := a.Get(tag)
	return ok
}

func (a *Attributes) set(e Element) {
	i, ok := a.indexOf(e.Tag)
	if ok {
		a.elements[i] = e
		return
	}
	a.elements = append(a.elements, Element{})
	copy(a.elements[i+1:], a.elements[i:])
	a.elements[i] = e
}

// SetString replaces the element with the given string values.
func (a *Attributes) SetString(tag Tag, vr VR, values ...string) {
	a.set(Element{Tag: tag, VR: vr, Value: append([]string(nil), values...)})
}

// SetInt replaces the element with integer values. Integer-string VRs (IS) are
// stored as text, binary integer VRs as []int.
func (a *Attributes) SetInt(tag Tag, vr VR, values ...int) {
	if vr.IsInt() {
		a.set(Element{Tag: tag, VR: vr, Value: append([]int(nil), values...)})
		return
	}
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	a.set(Element{Tag: tag, VR: vr, Value: s})
}

// SetBytes replaces the element with raw bytes.
func (a *Attributes) SetBytes(tag Tag, vr VR, b []byte) {
	a.set(Element{Tag: tag, VR: vr, Value: append([]byte(nil), b...)})
}

// SetSequence replaces the element with a sequence of items.
func (a *Attributes) SetSequence(tag Tag, items ...*Attributes) {
	a.set(Element{Tag: tag, VR: VR_SQ, Value: append([]*Attributes(nil), items...)})
}

// Remove deletes the element with the given tag.
func (a *Attributes) Remove(tag Tag) {
	if i, ok := a.indexOf(tag); ok {
		a.elements = append(a.elements[:i], a.elements[i+1:]...)
	}
}

// GetStrings returns all string values of the element.
func (a *Attributes) GetStrings(tag Tag) []string {
	e, ok := a.Get(tag)
	if !ok {
		return nil
	}
	switch v := e.Value.(type) {
	case []string:
		return v
	case []int:
		s := make([]string, len(v))
		for i, n := range v {
			s[i] = strconv.Itoa(n)
		}
		return s
	}
	return nil
}

// GetString returns the first value of the element, trimmed, or "".
func (a *Attributes) GetString(tag Tag) string {
	values := a.GetStrings(tag)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// GetInt returns the first value as an integer, or def.
func (a *Attributes) GetInt(tag Tag, def int) int {
	e, ok := a.Get(tag)
	if !ok {
		return def
	}
	switch v := e.Value.(type) {
	case []int:
		if len(v) > 0 {
			return v[0]
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n
			}
		}
	}
	return def
}

// GetSequence returns the items of a sequence element.
func (a *Attributes) GetSequence(tag Tag) []*Attributes {
	e, ok := a.Get(tag)
	if !ok {
		return nil
	}
	items, _ := e.Value.([]*Attributes)
	return items
}

// AddAll copies all elements of other into a. Elements already present are replaced.
func (a *Attributes) AddAll(other *Attributes) {
	if other == nil {
		return
	}
	if len(a.elements) == 0 {
		a.elements = append(a.elements, other.elements...)
		return
	}
	for _, e := range other.elements {
		a.set(e)
	}
}

// SpecificCharacterSet returns the declared character set terms.
func (a *Attributes) SpecificCharacterSet() []string {
	return a.GetStrings(TagSpecificCharacterSet)
}

// SetSpecificCharacterSet declares the character set. An empty declaration
// removes the element, meaning the default repertoire.
func (a *Attributes) SetSpecificCharacterSet(codes ...string) {
	if len(codes) == 0 {
		a.Remove(TagSpecificCharacterSet)
		return
	}
	a.SetString(TagSpecificCharacterSet, VR_CS, codes...)
}

// Filter returns a copy holding only the selected tags. The Specific Character
// Set is always retained.
func (a *Attributes) Filter(filter *AttributeFilter) *Attributes {
	if filter == nil {
		return a.Copy()
	}
	out := NewAttributes(filter.Len() + 1)
	for _, e := range a.Elements() {
		if e.Tag == TagSpecificCharacterSet || filter.Selects(e.Tag) {
			out.elements = append(out.elements, e)
		}
	}
	return out
}

// Copy returns a shallow copy; sequence items are shared.
func (a *Attributes) Copy() *Attributes {
	out := NewAttributes(a.Size())
	out.elements = append(out.elements, a.Elements()...)
	return out
}

// AttributeFilter selects the tags an entity retains.
type AttributeFilter struct {
	tags map[Tag]struct{}
}

// NewAttributeFilter creates a filter selecting the given tags.
func NewAttributeFilter(tags ...Tag) *AttributeFilter {
	f := &AttributeFilter{tags: make(map[Tag]struct{}, len(tags))}
	for _, t := range tags {
		f.tags[t] = struct{}{}
	}
	return f
}

// Selects reports whether the tag is retained by the filter.
func (f *AttributeFilter) Selects(tag Tag) bool {
	if f == nil {
		return true
	}
	_, ok := f.tags[tag]
	return ok
}

// Len returns the number of selected tags.
func (f *AttributeFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.tags)
}
