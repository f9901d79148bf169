package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrsinham/dicomsort/internal/dicomtest"
	"github.com/mrsinham/dicomsort/internal/export"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func writeStudy(t *testing.T, root string) {
	t.Helper()
	dicomtest.Write(t, filepath.Join(root, "a", "IM1.dcm"), dicomtest.Image{SeriesUID: "S1", SOPUID: "1.1", Position: dicomtest.Pos(30), PatientName: "Doe^Jane", Width: 8, Height: 8})
	dicomtest.Write(t, filepath.Join(root, "a", "IM2.dcm"), dicomtest.Image{SeriesUID: "S1", SOPUID: "1.2", Position: dicomtest.Pos(10), PatientName: "Doe^Jane", Width: 8, Height: 8})
	dicomtest.Write(t, filepath.Join(root, "b", "IM3.dcm"), dicomtest.Image{SeriesUID: "S1", SOPUID: "1.3", Position: dicomtest.Pos(20), Width: 8, Height: 8})
	dicomtest.Write(t, filepath.Join(root, "b", "IM2.dcm"), dicomtest.Image{SeriesUID: "S1", SOPUID: "1.2", Position: dicomtest.Pos(10)})
	dicomtest.Write(t, filepath.Join(root, "c", "IM9.dcm"), dicomtest.Image{SeriesUID: "S2", SOPUID: "2.1"})
}

func TestSession_BeforeScan(t *testing.T) {
	s := New(Options{})

	if s.ID() != "" {
		t.Errorf("ID() = %q before scan", s.ID())
	}
	report, err := s.Relocate(context.Background(), "")
	if err != nil || len(report.Series) != 0 {
		t.Errorf("Relocate before scan = (%v, %v), want empty report", report, err)
	}
	report, err = s.Anonymize(context.Background(), nil)
	if err != nil || len(report.Series) != 0 {
		t.Errorf("Anonymize before scan = (%v, %v), want empty report", report, err)
	}
	if _, err := s.Image("S1", 0); !errors.Is(err, ErrNoScan) {
		t.Errorf("Image before scan: err = %v, want ErrNoScan", err)
	}
	if _, err := s.Preview("S1", 0, 64); !errors.Is(err, ErrNoScan) {
		t.Errorf("Preview before scan: err = %v, want ErrNoScan", err)
	}
}

func TestSession_ScanAndQuery(t *testing.T) {
	root := t.TempDir()
	writeStudy(t, root)
	s := New(Options{Workers: 2})

	stats, err := s.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if stats.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", stats.Duplicates)
	}
	if s.ID() == "" {
		t.Error("ID() empty after scan")
	}

	snap := s.Snapshot()
	if snap["S1"] != 3 || snap["S2"] != 1 || len(snap) != 2 {
		t.Errorf("Snapshot() = %v", snap)
	}

	first, err := s.Image("S1", 0)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if z, _ := first.Object.Position(); z != 10 {
		t.Errorf("first image position = %v, want 10", z)
	}
	if _, err := s.Image("S1", 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Image(S1, 3): err = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := s.Image("S9", 0); !errors.Is(err, ErrUnknownSeries) {
		t.Errorf("Image(S9, 0): err = %v, want ErrUnknownSeries", err)
	}

	img, err := s.Preview("S1", 1, 32)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if img.Bounds().Dx() != 32 {
		t.Errorf("preview width = %d, want 32", img.Bounds().Dx())
	}
}

func TestSession_RescanReplacesState(t *testing.T) {
	first := t.TempDir()
	writeStudy(t, first)
	second := t.TempDir()
	dicomtest.Write(t, filepath.Join(second, "IM1.dcm"), dicomtest.Image{SeriesUID: "S3", SOPUID: "1.1"})

	s := New(Options{})
	if _, err := s.Scan(context.Background(), first); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	firstID := s.ID()
	if _, err := s.Scan(context.Background(), second); err != nil {
		t.Fatalf("second Scan: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 1 || snap["S3"] != 1 {
		t.Errorf("Snapshot() after rescan = %v, want only S3", snap)
	}
	if s.ID() == firstID {
		t.Error("rescan kept the previous run id")
	}
	if s.Root() != second {
		t.Errorf("Root() = %s, want %s", s.Root(), second)
	}
}

func TestSession_ExportScenario(t *testing.T) {
	root := t.TempDir()
	writeStudy(t, root)
	s := New(Options{})
	if _, err := s.Scan(context.Background(), root); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	report, err := s.Anonymize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if report.Written() != 4 {
		t.Errorf("anonymized %d files, want 4", report.Written())
	}
	for _, name := range []string{"IM1_anonymized.dcm", "IM2_anonymized.dcm", "IM3_anonymized.dcm"} {
		path := filepath.Join(root, export.DefaultAnonymizedDir, "S1", name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	report, err = s.Relocate(context.Background(), "S1")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if report.Written() != 3 {
		t.Errorf("relocated %d files, want 3", report.Written())
	}

	entries, _ := s.Get("S1")
	for _, e := range entries {
		if sop, _ := e.Object.SOPInstanceUID(); sop == "1.1" && !e.Object.Has(tag.PatientName) {
			t.Error("anonymize modified the session's objects")
		}
	}
}

func TestSession_ScanMissingRoot(t *testing.T) {
	s := New(Options{})
	if _, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error for a missing root")
	}
	if report, err := s.Relocate(context.Background(), ""); err != nil || len(report.Series) != 0 {
		t.Errorf("Relocate after failed scan = (%v, %v)", report, err)
	}
}
