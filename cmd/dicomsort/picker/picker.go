// Package picker lets the user choose a series and an export action
// interactively after a scan.
package picker

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

// Action is an export operation selected in the picker.
type Action string

const (
	ActionRelocate  Action = "relocate"
	ActionAnonymize Action = "anonymize"
	ActionBoth      Action = "both"
)

// AllSeries is the picker value meaning every series.
const AllSeries = ""

// Choice is the result of a completed picker.
type Choice struct {
	SeriesID string // AllSeries or one series id
	Action   Action
}

// Relocate reports whether the choice includes relocation.
func (c Choice) Relocate() bool {
	return c.Action == ActionRelocate || c.Action == ActionBoth
}

// Anonymize reports whether the choice includes anonymization.
func (c Choice) Anonymize() bool {
	return c.Action == ActionAnonymize || c.Action == ActionBoth
}

// Model is the bubbletea model wrapping the selection form.
type Model struct {
	form      *huh.Form
	ids       []string
	counts    map[string]int
	seriesID  string
	action    string
	done      bool
	cancelled bool
}

// NewModel builds the picker for the given series, listed in ids order.
func NewModel(ids []string, counts map[string]int) *Model {
	m := &Model{
		ids:      ids,
		counts:   counts,
		seriesID: AllSeries,
		action:   string(ActionRelocate),
	}

	seriesOptions := []huh.Option[string]{huh.NewOption("All series", AllSeries)}
	for _, id := range ids {
		seriesOptions = append(seriesOptions, huh.NewOption(fmt.Sprintf("%s (%d images)", id, counts[id]), id))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("series").
				Title("Series").
				Description("Relocation applies to this series; anonymization always covers all series").
				Options(seriesOptions...).
				Value(&m.seriesID),
			huh.NewSelect[string]().
				Key("action").
				Title("Action").
				Options(
					huh.NewOption("Relocate into the sorted layout", string(ActionRelocate)),
					huh.NewOption("Write anonymized copies", string(ActionAnonymize)),
					huh.NewOption("Both", string(ActionBoth)),
				).
				Value(&m.action),
		),
	).WithShowHelp(false)

	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.done = true
		return m, tea.Quit
	case huh.StateAborted:
		m.cancelled = true
		return m, tea.Quit
	}
	return m, cmd
}

// View implements tea.Model
func (m *Model) View() string {
	if m.cancelled {
		return "Cancelled.\n"
	}
	if m.done {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("dicomsort - choose what to export"),
		RenderSummary(m.ids, m.counts),
		"",
		m.form.View(),
		"",
		labelStyle.Render("Enter: Select | Esc: Cancel"),
	)
}

// Choice returns the selection. It is only meaningful once the form completed.
func (m *Model) Choice() (Choice, error) {
	if m.cancelled || !m.done {
		return Choice{}, ErrCancelled
	}
	return Choice{SeriesID: m.seriesID, Action: Action(m.action)}, nil
}

// Run shows the picker on the terminal and returns the user's choice.
func Run(ids []string, counts map[string]int) (Choice, error) {
	p := tea.NewProgram(NewModel(ids, counts))

	finalModel, err := p.Run()
	if err != nil {
		return Choice{}, fmt.Errorf("running picker: %w", err)
	}
	m, ok := finalModel.(*Model)
	if !ok {
		return Choice{}, fmt.Errorf("running picker: unexpected model %T", finalModel)
	}
	return m.Choice()
}
