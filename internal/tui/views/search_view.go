package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/huddle/internal/tui/client"
	"github.com/matheus3301/huddle/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView lists message search results. Selecting one opens its chat.
type SearchView struct {
	*tview.Table
	theme *ui.Theme
	data  []client.Message
}

func NewSearchView(theme *ui.Theme) *SearchView {
	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	return &SearchView{Table: results, theme: theme}
}

// Update shows results for query; chatName resolves chat ids for display.
func (sv *SearchView) Update(query string, results []client.Message, chatName func(int64) string) {
	sv.data = results
	sv.Clear()
	sv.SetTitle(fmt.Sprintf(" Results for %q (%d) ", tview.Escape(query), len(results)))

	for col, h := range []string{" CHAT", " FROM", " TEXT", " TIME"} {
		sv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	for i, m := range results {
		row := i + 1
		sv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(chatName(m.ChatID)))).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(m.SenderDisplayName))).SetMaxWidth(20).SetTextColor(sv.theme.FgColor))
		sv.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(m.Content))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(m.CreatedAt)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
}

// SelectedChat returns the chat of the highlighted result, or 0.
func (sv *SearchView) SelectedChat() int64 {
	row, _ := sv.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx].ChatID
	}
	return 0
}
