package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/service"
)

const (
	fieldURL = iota
	fieldTitle
	fieldTags
	fieldCategory
	fieldNote
)

var fieldLabels = []string{"URL", "Title", "Tags", "Category", "Note"}

type addForm struct {
	inputs []textinput.Model
	focus  int
}

func newAddForm() addForm {
	placeholders := []string{
		"https://example.com/article",
		"optional, fetched from the page",
		"comma separated",
		strings.Join(model.Categories, ", "),
		"optional",
	}

	f := addForm{inputs: make([]textinput.Model, len(fieldLabels))}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = placeholders[i]
		in.CharLimit = 2048
		f.inputs[i] = in
	}
	f.inputs[fieldTags].CharLimit = 256
	return f
}

func (f *addForm) focusCmd() tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	return f.inputs[f.focus].Focus()
}

func (f *addForm) next() tea.Cmd {
	f.focus = (f.focus + 1) % len(f.inputs)
	return f.focusCmd()
}

func (f *addForm) prev() tea.Cmd {
	f.focus = (f.focus - 1 + len(f.inputs)) % len(f.inputs)
	return f.focusCmd()
}

func (f addForm) update(msg tea.KeyMsg) (addForm, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		return f, f.next()
	case "shift+tab", "up":
		return f, f.prev()
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f addForm) value() service.NewLink {
	get := func(i int) string { return strings.TrimSpace(f.inputs[i].Value()) }
	return service.NewLink{
		URL:      get(fieldURL),
		Title:    get(fieldTitle),
		Tags:     model.ParseTags(get(fieldTags)),
		Category: get(fieldCategory),
		Note:     get(fieldNote),
	}
}
