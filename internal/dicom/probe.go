package dicom

import (
	"os"

	"github.com/suyashkumar/dicom"
)

// Probe parses path as a DICOM file. Any failure, including the file simply not
// being DICOM, yields (nil, false): during a directory walk non-DICOM files are
// expected and are not errors.
func Probe(path string) (obj *Object, ok bool) {
	// The parser can panic on some malformed inputs; treat that as "not DICOM".
	defer func() {
		if r := recover(); r != nil {
			obj, ok = nil, false
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, false
	}

	ds, err := dicom.Parse(f, info.Size(), nil)
	if err != nil {
		return nil, false
	}
	return NewObject(ds), true
}
