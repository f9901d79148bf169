// Package dicom wraps parsed DICOM datasets with the accessors the sorter needs:
// series and instance identifiers, slice position, and field removal.
package dicom

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Object is one decoded DICOM file. The element list is never modified after
// construction; Without returns a new Object instead.
type Object struct {
	ds dicom.Dataset
}

// NewObject wraps an already parsed dataset.
func NewObject(ds dicom.Dataset) *Object {
	return &Object{ds: ds}
}

// Dataset returns the underlying dataset. Callers must not modify it.
func (o *Object) Dataset() dicom.Dataset {
	return o.ds
}

// SeriesInstanceUID returns the (0020,000E) value.
func (o *Object) SeriesInstanceUID() (string, bool) {
	return o.firstString(tag.SeriesInstanceUID)
}

// SOPInstanceUID returns the (0008,0018) value.
func (o *Object) SOPInstanceUID() (string, bool) {
	return o.firstString(tag.SOPInstanceUID)
}

// Position returns the third component of Image Position (Patient).
// Missing, short, unparseable and NaN values all report false.
func (o *Object) Position() (float64, bool) {
	values, ok := o.stringValues(tag.ImagePositionPatient)
	if !ok || len(values) < 3 {
		return 0, false
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(values[2]), 64)
	if err != nil || math.IsNaN(z) {
		return 0, false
	}
	return z, true
}

// Has reports whether a top-level element with tag t is present.
func (o *Object) Has(t tag.Tag) bool {
	for _, elem := range o.ds.Elements {
		if elem.Tag == t {
			return true
		}
	}
	return false
}

// Without returns a copy of o whose top-level elements exclude every tag in
// tags. Tags that are not present are ignored, and when none is present o
// itself is returned. The receiver is left intact.
func (o *Object) Without(tags []tag.Tag) *Object {
	drop := make(map[tag.Tag]struct{}, len(tags))
	for _, t := range tags {
		if o.Has(t) {
			drop[t] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return o
	}

	elements := make([]*dicom.Element, 0, len(o.ds.Elements)-len(drop))
	for _, elem := range o.ds.Elements {
		if _, ok := drop[elem.Tag]; ok {
			continue
		}
		elements = append(elements, elem)
	}
	return &Object{ds: dicom.Dataset{Elements: elements}}
}

// WriteTo encodes the object as a DICOM file. Datasets read from disk may carry
// private or vendor elements whose VR does not match the dictionary, so VR and
// value type verification are skipped.
func (o *Object) WriteTo(w io.Writer) error {
	return dicom.Write(w, o.ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification())
}

func (o *Object) firstString(t tag.Tag) (string, bool) {
	values, ok := o.stringValues(t)
	if !ok || len(values) == 0 {
		return "", false
	}
	v := strings.Trim(values[0], " \x00")
	if v == "" {
		return "", false
	}
	return v, true
}

func (o *Object) stringValues(t tag.Tag) ([]string, bool) {
	elem, err := o.ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return nil, false
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil, false
	}
	return values, true
}
