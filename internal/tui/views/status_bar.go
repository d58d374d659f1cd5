package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/huddle/internal/tui/model"
	"github.com/matheus3301/huddle/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar shows the server, the signed-in user, the gateway link state
// and the current flash notice.
type StatusBar struct {
	*tview.TextView
	theme  *ui.Theme
	server string
	user   string
	link   string
	hints  string
	flash  string
	level  model.FlashLevel
}

func NewStatusBar(theme *ui.Theme, server string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.StatusBgColor)
	sb := &StatusBar{TextView: tv, theme: theme, server: server, link: "connecting"}
	sb.render()
	return sb
}

func (sb *StatusBar) SetUser(name string) {
	sb.user = name
	sb.render()
}

// SetLink updates the gateway connection indicator.
func (sb *StatusBar) SetLink(state string) {
	sb.link = state
	sb.render()
}

func (sb *StatusBar) SetHints(hints string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) SetFlash(msg string, level model.FlashLevel) {
	sb.flash, sb.level = msg, level
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	linkColor := "green"
	if sb.link != "online" {
		linkColor = "red"
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] @ %s | [%s]%s[-] | %s",
		tview.Escape(sb.user), tview.Escape(sb.server), linkColor, sb.link, time.Now().Format("15:04"))
	if sb.hints != "" {
		line += " | " + tview.Escape(sb.hints)
	}
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		if sb.level == model.FlashError {
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [#%06x]%s[-]", color.Hex(), tview.Escape(sb.flash))
	}
	_, _ = fmt.Fprint(sb, line)
}
