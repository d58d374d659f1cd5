package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/huddle/internal/tui/client"
	"github.com/matheus3301/huddle/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatList is the table of the user's chats.
type ChatList struct {
	*tview.Table
	theme *ui.Theme
	chats []client.Chat
}

func NewChatList(theme *ui.Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Chats ")
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.Foreground(theme.TableCursorFg).Background(theme.TableCursorBg))
	return &ChatList{Table: table, theme: theme}
}

// Update redraws the list, keeping the selected row when possible.
func (cl *ChatList) Update(chats []client.Chat, unread func(chatID int64) int) {
	selected := cl.SelectedChat()
	cl.chats = chats
	cl.Clear()

	for col, h := range []string{" NAME", " KIND", " CREATED"} {
		cl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}

	for i, c := range chats {
		row := i + 1
		name := sanitizeForTerminal(c.Name)
		color := cl.theme.FgColor
		if n := unread(c.ID); n > 0 {
			name = fmt.Sprintf("* %s (%d)", name, n)
			color = cl.theme.UnreadColor
		}
		kind := "direct"
		if c.IsGroup {
			kind = "group"
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(name)).SetMaxWidth(40).SetExpansion(2).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+kind).SetMaxWidth(8).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(c.CreatedAt)).SetMaxWidth(12).SetTextColor(cl.theme.FgColor))
		if c.ID == selected {
			cl.Select(row, 0)
		}
	}
}

// SelectedChat returns the id of the highlighted chat, or 0.
func (cl *ChatList) SelectedChat() int64 {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx].ID
	}
	return 0
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
