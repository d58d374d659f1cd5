package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/huddle/internal/tui/client"
	"github.com/matheus3301/huddle/internal/tui/keys"
	"github.com/matheus3301/huddle/internal/tui/model"
	"github.com/matheus3301/huddle/internal/tui/ui"
	"github.com/matheus3301/huddle/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats  = "chats"
	pageChat   = "chat"
	pageSearch = "search"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	root      *tview.Flex
	pages     *tview.Pages
	vm        *model.ViewModel
	api       *client.Client
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	thread    *views.MessageThread
	search    *views.SearchView
	prompt    *ui.Prompt

	mu     sync.Mutex
	joined map[int64]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI for the user behind c on server.
func NewApp(c *client.Client, server string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(0),
		api:       c,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(theme, server),
		chatList:  views.NewChatList(theme),
		thread:    views.NewMessageThread(theme),
		search:    views.NewSearchView(theme),
		prompt:    ui.NewPrompt(theme),
		joined:    make(map[int64]bool),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "q:quit",
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "::command",
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "/:search",
		Handler: func() { a.showPrompt(ui.PromptSearch) },
	})
	a.registry.AddPage(pageChats, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh",
		Handler: func() { go a.refreshChats() },
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "i:compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(_, _ int) {
		if id := a.chatList.SelectedChat(); id != 0 {
			a.openChat(id)
		}
	})
	a.search.SetSelectedFunc(func(_, _ int) {
		if id := a.search.SelectedChat(); id != 0 {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		chatID := a.vm.Active()
		if chatID == 0 {
			return
		}
		// The echoed receive_message confirms delivery.
		if _, err := a.api.Send(chatID, text); err != nil {
			a.vm.Flash.Error("Send failed", err)
			a.refreshStatus()
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptSearch:
			go a.runSearch(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, a.thread, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.root, true)
	a.statusBar.SetHints(a.registry.Hints(pageChats))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()
		focused := a.app.GetFocus()

		if event.Key() == tcell.KeyEscape {
			if focused == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			if !isInput(focused) && currentPage != pageChats {
				a.showChats()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		if isInput(focused) {
			return event
		}
		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func isInput(p tview.Primitive) bool {
	switch p.(type) {
	case *tview.InputField, *ui.Prompt:
		return true
	}
	return false
}

func (a *App) switchTo(page string, focus tview.Primitive) {
	a.pages.SwitchToPage(page)
	a.app.SetFocus(focus)
	a.statusBar.SetHints(a.registry.Hints(page))
}

func (a *App) showChats() {
	a.vm.Close()
	a.chatList.Update(a.vm.Chats(), a.vm.Unread)
	a.switchTo(pageChats, a.chatList)
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	_, front := a.pages.GetFrontPage()
	a.app.SetFocus(front)
}

// openChat loads history after the room is joined and the chat made active,
// so nothing falls between the two; the view model drops duplicates.
func (a *App) openChat(chatID int64) {
	a.join(chatID)
	a.vm.Begin(chatID)
	go func() {
		history, err := a.api.History(a.ctx, chatID)
		if err != nil {
			a.vm.Flash.Error("Load failed", err)
			a.app.QueueUpdateDraw(a.refreshStatus)
			return
		}
		a.vm.Open(chatID, history)
		a.app.QueueUpdateDraw(func() {
			a.thread.SetChatName(a.vm.ChatName(chatID))
			a.thread.Update(a.vm.Messages(), a.vm.Self())
			a.switchTo(pageChat, a.thread.Composer())
		})
	}()
}

func (a *App) join(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.joined[chatID] {
		return
	}
	if _, err := a.api.Join(chatID); err != nil {
		a.vm.Flash.Error("Join failed", err)
		return
	}
	a.joined[chatID] = true
}

func (a *App) leave(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.joined[chatID] {
		return
	}
	if _, err := a.api.Leave(chatID); err != nil {
		a.vm.Flash.Error("Leave failed", err)
		return
	}
	delete(a.joined, chatID)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "direct", "dm":
		userID, err := cmd.UserID()
		if err != nil {
			a.flashError(err)
			return
		}
		go func() {
			chat, created, err := a.api.StartDirect(a.ctx, userID)
			if err != nil {
				a.vm.Flash.Error("Direct chat failed", err)
				a.app.QueueUpdateDraw(a.refreshStatus)
				return
			}
			if !created {
				a.vm.Flash.Set("Opened existing chat", 3*time.Second)
			}
			a.refreshChats()
			a.openChat(chat.ID)
		}()
	case "group":
		ids, name, err := cmd.Group()
		if err != nil {
			a.flashError(err)
			return
		}
		go func() {
			chat, err := a.api.StartGroup(a.ctx, name, ids)
			if err != nil {
				a.vm.Flash.Error("Group failed", err)
				a.app.QueueUpdateDraw(a.refreshStatus)
				return
			}
			a.refreshChats()
			a.openChat(chat.ID)
		}()
	case "users":
		go a.showUsers()
	case "search":
		go a.runSearch(cmd.Args)
	case "leave":
		// Stops live delivery for the open chat until it is opened again.
		if id := a.vm.Active(); id != 0 {
			a.leave(id)
			a.showChats()
		}
	case "refresh":
		go a.refreshChats()
	default:
		a.flashError(fmt.Errorf("unknown command %q", cmd.Name))
	}
}

func (a *App) flashError(err error) {
	a.vm.Flash.Error("Error", err)
	a.refreshStatus()
}

func (a *App) refreshStatus() {
	msg, level := a.vm.Flash.Get()
	a.statusBar.SetFlash(msg, level)
}

func (a *App) runSearch(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	results, err := a.api.Search(a.ctx, query)
	if err != nil {
		a.vm.Flash.Error("Search failed", err)
		a.app.QueueUpdateDraw(a.refreshStatus)
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.search.Update(query, results, a.vm.ChatName)
		a.switchTo(pageSearch, a.search)
	})
}

func (a *App) showUsers() {
	users, err := a.api.Users(a.ctx)
	if err != nil {
		a.vm.Flash.Error("Users failed", err)
		a.app.QueueUpdateDraw(a.refreshStatus)
		return
	}
	parts := make([]string, 0, len(users))
	for _, u := range users {
		parts = append(parts, fmt.Sprintf("%d=%s", u.ID, u.DisplayName))
	}
	a.vm.Flash.Set("Users: "+strings.Join(parts, ", "), 15*time.Second)
	a.app.QueueUpdateDraw(a.refreshStatus)
}

// refreshChats reloads the chat list and joins chats created since the last
// load, so unread counts cover every chat.
func (a *App) refreshChats() {
	chats, err := a.api.Chats(a.ctx)
	if err != nil {
		a.vm.Flash.Error("Load chats failed", err)
		a.app.QueueUpdateDraw(a.refreshStatus)
		return
	}
	for _, id := range a.vm.SetChats(chats) {
		a.join(id)
	}
	a.app.QueueUpdateDraw(func() {
		if page, _ := a.pages.GetFrontPage(); page == pageChats {
			a.chatList.Update(a.vm.Chats(), a.vm.Unread)
		}
		a.refreshStatus()
	})
}

func (a *App) consumeEvents() {
	for evt := range a.api.Events() {
		switch evt.Type {
		case "authenticated":
			a.vm.SetSelf(evt.UserID)
			label := fmt.Sprintf("user %d", evt.UserID)
			a.app.QueueUpdateDraw(func() { a.statusBar.SetUser(label) })
		case "receive_message":
			changed := a.vm.Apply(*evt.Message)
			a.app.QueueUpdateDraw(func() {
				if changed {
					a.thread.Update(a.vm.Messages(), a.vm.Self())
				} else if page, _ := a.pages.GetFrontPage(); page == pageChats {
					a.chatList.Update(a.vm.Chats(), a.vm.Unread)
				}
			})
		case "error":
			a.vm.Flash.Error("Server", errors.New(evt.ErrorMsg))
			a.app.QueueUpdateDraw(a.refreshStatus)
		}
	}
	a.vm.Flash.Error("Gateway", errors.New("connection closed, restart to reconnect"))
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetLink("offline")
		a.refreshStatus()
	})
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refreshChats()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.api.Connect(a.ctx); err != nil {
			a.vm.Flash.Error("Connect failed", err)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetLink("offline")
				a.refreshStatus()
			})
		} else {
			go a.consumeEvents()
			if _, err := a.api.Authenticate(); err != nil {
				a.vm.Flash.Error("Authenticate failed", err)
			}
			a.app.QueueUpdateDraw(func() { a.statusBar.SetLink("online") })
		}
		a.refreshChats()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// Stop shuts down the TUI and its gateway connection.
func (a *App) Stop() {
	a.cancel()
	_ = a.api.Close()
	a.app.Stop()
}
