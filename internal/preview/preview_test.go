package preview

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/mrsinham/dicomsort/internal/dicom"
	"github.com/mrsinham/dicomsort/internal/dicomtest"
)

func fixture(t *testing.T, img dicomtest.Image) *dicom.Object {
	t.Helper()
	path := filepath.Join(t.TempDir(), "IM1.dcm")
	dicomtest.Write(t, path, img)
	obj, ok := dicom.Probe(path)
	if !ok {
		t.Fatalf("fixture does not parse")
	}
	return obj
}

func TestRender_ScalesAndStretches(t *testing.T) {
	obj := fixture(t, dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1", Width: 16, Height: 8})

	img, err := Render(obj.Dataset(), 64, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(64, 32) {
		t.Fatalf("size = %v, want 64x32", got)
	}

	dark := img.RGBAAt(0, 0)
	bright := img.RGBAAt(63, 31)
	if dark.R > 30 {
		t.Errorf("top-left = %v, want near black", dark)
	}
	if bright.R < 200 {
		t.Errorf("bottom-right = %v, want near white", bright)
	}
	t.Logf("✓ gradient stretched from %d to %d", dark.R, bright.R)
}

func TestRender_NativeSize(t *testing.T) {
	obj := fixture(t, dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1", Width: 12, Height: 12})

	img, err := Render(obj.Dataset(), 0, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(12, 12) {
		t.Errorf("size = %v, want 12x12", got)
	}
}

func TestRender_Label(t *testing.T) {
	obj := fixture(t, dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1", Width: 64, Height: 64})

	plain, err := Render(obj.Dataset(), 128, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	labelled, err := Render(obj.Dataset(), 128, "3/10")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	changed := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 80; x++ {
			if plain.RGBAAt(x, y) != labelled.RGBAAt(x, y) {
				changed++
			}
		}
	}
	if changed == 0 {
		t.Error("label did not change any pixel in the top-left corner")
	}
	if plain.RGBAAt(127, 127) != labelled.RGBAAt(127, 127) {
		t.Error("label drawn outside the top-left corner")
	}
}

func TestRender_NoPixelData(t *testing.T) {
	obj := fixture(t, dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1"})

	if _, err := Render(obj.Dataset(), 64, "1/1"); !errors.Is(err, ErrNoPixelData) {
		t.Fatalf("err = %v, want ErrNoPixelData", err)
	}
}

func TestWritePNG(t *testing.T) {
	obj := fixture(t, dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1", Width: 8, Height: 8})
	img, err := Render(obj.Dataset(), 16, "1/1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
