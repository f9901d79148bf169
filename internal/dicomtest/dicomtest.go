// Package dicomtest synthesises small DICOM files for tests.
package dicomtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// MRImageStorage is the SOP class written into every fixture.
const MRImageStorage = "1.2.840.10008.5.1.4.1.1.4"

// Image describes one fixture file. Empty identifiers and a nil Position omit
// the corresponding element entirely.
type Image struct {
	SeriesUID   string
	SOPUID      string
	Position    *float64
	PatientName string

	// Extra string-valued elements, e.g. tag.InstitutionName.
	Extra map[tag.Tag]string

	// Width and Height > 0 add a 16-bit MONOCHROME2 frame.
	Width  int
	Height int
}

// Pos returns a pointer to z for Image.Position.
func Pos(z float64) *float64 {
	return &z
}

// Write creates path (and its parent directories) and fails the test on error.
func Write(t testing.TB, path string, img Image) {
	t.Helper()
	if err := WriteFile(path, img); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}

// WriteFile creates a DICOM file at path described by img.
func WriteFile(path string, img Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}

	elements, err := buildElements(img)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, dicom.Dataset{Elements: elements})
}

func buildElements(img Image) ([]*dicom.Element, error) {
	var elements []*dicom.Element
	add := func(t tag.Tag, value any) error {
		elem, err := dicom.NewElement(t, value)
		if err != nil {
			return fmt.Errorf("create element %v: %w", t, err)
		}
		elements = append(elements, elem)
		return nil
	}

	if err := add(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}); err != nil {
		return nil, err
	}
	if err := add(tag.SOPClassUID, []string{MRImageStorage}); err != nil {
		return nil, err
	}
	if err := add(tag.Modality, []string{"MR"}); err != nil {
		return nil, err
	}
	if img.SOPUID != "" {
		if err := add(tag.SOPInstanceUID, []string{img.SOPUID}); err != nil {
			return nil, err
		}
	}
	if img.SeriesUID != "" {
		if err := add(tag.SeriesInstanceUID, []string{img.SeriesUID}); err != nil {
			return nil, err
		}
	}
	if img.PatientName != "" {
		if err := add(tag.PatientName, []string{img.PatientName}); err != nil {
			return nil, err
		}
	}
	if img.Position != nil {
		position := []string{"-100.000000", "-100.000000", fmt.Sprintf("%.6f", *img.Position)}
		if err := add(tag.ImagePositionPatient, position); err != nil {
			return nil, err
		}
	}
	for t, v := range img.Extra {
		if err := add(t, []string{v}); err != nil {
			return nil, err
		}
	}

	if img.Width > 0 && img.Height > 0 {
		pixelElements, err := pixelElements(img.Width, img.Height)
		if err != nil {
			return nil, err
		}
		elements = append(elements, pixelElements...)
	}

	// Elements must be written in ascending tag order.
	sort.Slice(elements, func(i, j int) bool {
		if elements[i].Tag.Group != elements[j].Tag.Group {
			return elements[i].Tag.Group < elements[j].Tag.Group
		}
		return elements[i].Tag.Element < elements[j].Tag.Element
	})
	return elements, nil
}

// pixelElements builds a radial gradient frame with the image pixel module tags.
func pixelElements(width, height int) ([]*dicom.Element, error) {
	pixelsPerFrame := width * height
	nativeFrame := frame.NewNativeFrame[uint16](16, height, width, pixelsPerFrame, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nativeFrame.RawData[y*width+x] = uint16((x + y) * 65535 / (width + height))
		}
	}

	pixelData := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	values := []struct {
		t     tag.Tag
		value any
	}{
		{tag.Rows, []int{height}},
		{tag.Columns, []int{width}},
		{tag.BitsAllocated, []int{16}},
		{tag.BitsStored, []int{16}},
		{tag.HighBit, []int{15}},
		{tag.PixelRepresentation, []int{0}},
		{tag.SamplesPerPixel, []int{1}},
		{tag.PhotometricInterpretation, []string{"MONOCHROME2"}},
		{tag.PixelData, pixelData},
	}

	elements := make([]*dicom.Element, 0, len(values))
	for _, v := range values {
		elem, err := dicom.NewElement(v.t, v.value)
		if err != nil {
			return nil, fmt.Errorf("create element %v: %w", v.t, err)
		}
		elements = append(elements, elem)
	}
	return elements, nil
}
