package picker

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestChoice_Actions(t *testing.T) {
	tests := []struct {
		action              Action
		relocate, anonymize bool
	}{
		{ActionRelocate, true, false},
		{ActionAnonymize, false, true},
		{ActionBoth, true, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.action), func(t *testing.T) {
			c := Choice{Action: tc.action}
			if c.Relocate() != tc.relocate || c.Anonymize() != tc.anonymize {
				t.Errorf("Relocate/Anonymize = %v/%v, want %v/%v", c.Relocate(), c.Anonymize(), tc.relocate, tc.anonymize)
			}
		})
	}
}

func TestModel_Defaults(t *testing.T) {
	m := NewModel([]string{"1.2.3"}, map[string]int{"1.2.3": 4})
	if m.seriesID != AllSeries || m.action != string(ActionRelocate) {
		t.Errorf("defaults = %q/%q", m.seriesID, m.action)
	}
	if _, err := m.Choice(); !errors.Is(err, ErrCancelled) {
		t.Errorf("Choice() before completion: err = %v, want ErrCancelled", err)
	}
}

func TestModel_CancelKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{{Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		m := NewModel([]string{"1.2.3"}, map[string]int{"1.2.3": 4})
		m.Init()
		if _, cmd := m.Update(key); cmd == nil {
			t.Errorf("%s: expected a quit command", key)
		}
		if _, err := m.Choice(); !errors.Is(err, ErrCancelled) {
			t.Errorf("%s: err = %v, want ErrCancelled", key, err)
		}
		if m.View() != "Cancelled.\n" {
			t.Errorf("%s: view = %q", key, m.View())
		}
	}
}

func TestModel_CompletedChoice(t *testing.T) {
	m := NewModel([]string{"1.2.3", "1.2.4"}, map[string]int{"1.2.3": 4, "1.2.4": 2})
	m.seriesID = "1.2.4"
	m.action = string(ActionBoth)
	m.done = true

	c, err := m.Choice()
	if err != nil {
		t.Fatalf("Choice: %v", err)
	}
	if c.SeriesID != "1.2.4" || c.Action != ActionBoth {
		t.Errorf("Choice() = %+v", c)
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary([]string{"1.2.3", "1.2.40"}, map[string]int{"1.2.3": 12, "1.2.40": 3})
	for _, want := range []string{"SERIES", "IMAGES", "1.2.3", "1.2.40", "12", "2 series", "15"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	if empty := RenderSummary(nil, nil); !strings.Contains(empty, "No series found") {
		t.Errorf("empty summary = %q", empty)
	}
}
