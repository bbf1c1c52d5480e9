package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/keys"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/model"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/views"
)

const (
	pageChats  = "chats"
	pageThread = "thread"
	pageInfo   = "details"
	pageSearch = "search"
	pageHelp   = "help"
	pageLogin  = "login"
)

const tickInterval = 5 * time.Second

// Options configures the terminal UI.
type Options struct {
	Profile string
	// ChatLink builds a chat's shareable link. Nil hides the share QR.
	ChatLink func(chatID string) (string, error)
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	body     *tview.Flex
	vm       *model.ViewModel
	opts     Options
	registry *keys.Registry

	sessionInfo *ui.SessionInfo
	menu        *ui.Menu
	logo        *ui.Logo
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	statusBar   *views.StatusBar

	convList *views.ConversationList
	thread   *views.MessageThread
	info     *views.ConversationInfo
	search   *views.SearchView
	help     *views.HelpView
	login    *views.LoginView

	promptVisible bool
	loginShown    bool

	inputCh chan string
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApp creates the TUI application over a daemon client.
func NewApp(c model.Client, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		pages:       ui.NewPages(),
		vm:          model.NewViewModel(c),
		opts:        opts,
		registry:    keys.NewRegistry(),
		sessionInfo: ui.NewSessionInfo(theme),
		menu:        ui.NewMenu(theme),
		logo:        ui.NewLogo(theme),
		crumbs:      ui.NewCrumbs(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		statusBar:   views.NewStatusBar(theme),
		convList:    views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		info:        views.NewConversationInfo(theme),
		search:      views.NewSearchView(theme),
		help:        views.NewHelpView(theme),
		login:       views.NewLoginView(theme),
		inputCh:     make(chan string, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.statusBar.SetProfile(opts.Profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit / Back",
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Key: tcell.KeyRune, Rune: '?',
		Description: "Help",
		Handler:     func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "command", Key: tcell.KeyRune, Rune: ':',
		Description: "Command",
		Handler:     func() { a.showPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageChats, &keys.Action{
		Name: "filter", Key: tcell.KeyRune, Rune: '/',
		Description: "Filter",
		Handler:     func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "sort", Key: tcell.KeyRune, Rune: 's',
		Description: "Sort",
		Handler: func() {
			mode := a.convList.CycleSort()
			a.vm.Flash.Info("Sorted by " + mode.String())
		},
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "reload", Key: tcell.KeyRune, Rune: 'r',
		Description: "Reload",
		Handler:     func() { go a.loadChats() },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "clear-filter", Key: tcell.KeyRune, Rune: '0',
		Description: "Show all",
		Handler:     func() { a.convList.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageChats, &keys.Action{
			Name: fmt.Sprintf("jump-%d", n), Key: tcell.KeyRune, Rune: rune('0' + n),
			Description: "Jump",
			Handler: func() {
				if id := a.convList.ChatByIndex(n); id != "" {
					a.openChat(id)
				}
			},
		})
	}

	a.registry.AddView(pageThread, &keys.Action{
		Name: "compose", Key: tcell.KeyRune, Rune: 'i',
		Description: "Compose",
		Handler:     func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Name: "details", Key: tcell.KeyRune, Rune: 'd',
		Description: "Details",
		Handler:     a.showDetails,
	})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(a.updateChrome)

	a.convList.SetSelectedFunc(func(int, int) {
		if id := a.convList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.vm.Fail("send", err)
			}
		}()
	})
	a.thread.SetOnInput(a.queueInput)

	a.search.SetOnQuery(func(query string) {
		if query == "" {
			return
		}
		go func() {
			results, err := a.vm.SearchMessages(a.ctx, query)
			if err != nil {
				a.vm.Fail("search", err)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.search.Update(results)
				a.app.SetFocus(a.search.Results())
			})
		}()
	})
	a.search.Results().SetSelectedFunc(func(int, int) {
		if chatID, _ := a.search.SelectedResult(); chatID != "" {
			a.openChat(chatID)
		}
	})

	a.login.SetOnLogin(func(username, password string) {
		go func() {
			if err := a.vm.Login(a.ctx, username, password); err != nil {
				a.app.QueueUpdateDraw(func() { a.login.ShowError(err) })
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.login.Reset()
				a.login.ShowMessage("")
				a.loginShown = false
				a.pages.Reset(pageChats)
				a.focusCurrent()
			})
			a.loadChats()
		}()
	})

	a.prompt.SetCommands(commandNames)
	a.prompt.SetOnChange(func(_ ui.PromptMode, text string) {
		a.convList.SetFilter(text)
		a.updateChrome()
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	a.pages.Add(pageChats, a.convList)
	a.pages.Add(pageThread, a.thread)
	a.pages.Add(pageInfo, a.info)
	a.pages.Add(pageSearch, a.search)
	a.pages.Add(pageHelp, a.help)
	a.pages.Add(pageLogin, a.login)
	a.pages.Each(func(_ string, c ui.Component) { c.Init() })
	a.pages.Reset(pageChats)

	header := tview.NewFlex().
		AddItem(a.sessionInfo, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 16, 0, false)

	a.body = tview.NewFlex().SetDirection(tview.FlexRow)
	a.body.AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.convList)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	if a.promptVisible {
		return event
	}
	current := a.pages.Current()

	if event.Key() == tcell.KeyEscape {
		if current == pageThread && a.app.GetFocus() == a.thread.Composer() {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		if a.pages.Depth() > 1 {
			a.back()
			return nil
		}
		return event
	}

	// Text inputs and the login form get every other key.
	if current == pageLogin {
		return event
	}
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) back() {
	if a.pages.Current() == pageThread {
		go func() {
			if err := a.vm.CloseChat(a.ctx); err != nil {
				a.vm.Fail("leave chat", err)
			}
		}()
	}
	a.pages.Pop()
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageInfo:
		a.app.SetFocus(a.info)
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageHelp:
		a.app.SetFocus(a.help)
	case pageLogin:
		a.app.SetFocus(a.login.Form())
	default:
		a.app.SetFocus(a.convList)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	text := ""
	if mode == ui.PromptFilter {
		text = a.convList.Filter()
	}
	a.prompt.Activate(mode, text)
	a.promptVisible = true
	a.body.Clear()
	a.body.AddItem(a.prompt, 3, 0, true)
	a.body.AddItem(a.pages, 0, 1, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.promptVisible = false
	a.body.Clear()
	a.body.AddItem(a.pages, 0, 1, true)
	a.focusCurrent()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.push(pageHelp)
	case "login":
		a.push(pageLogin)
	case "search":
		a.push(pageSearch)
		if cmd.Args != "" {
			a.search.Submit(cmd.Args)
		}
	case "open":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: :open <chatId>")
			return
		}
		a.openChat(cmd.Args)
	case "start":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: :start <userId>")
			return
		}
		go func() {
			chatID, err := a.vm.StartChat(a.ctx, cmd.Args)
			if err != nil {
				a.vm.Fail("start chat", err)
				return
			}
			a.app.QueueUpdateDraw(func() { a.showThread(chatID) })
		}()
	case "read":
		chatID := a.vm.ActiveChat()
		if chatID == "" {
			chatID = a.convList.SelectedChat()
		}
		if chatID == "" {
			return
		}
		go func() {
			if err := a.vm.MarkRead(a.ctx, chatID); err != nil {
				a.vm.Fail("mark read", err)
			}
		}()
	case "close":
		if a.pages.Current() == pageThread {
			a.back()
		}
	case "":
	default:
		a.vm.Flash.Warn("unknown command: " + cmd.Name)
	}
}

func (a *App) openChat(chatID string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, chatID); err != nil {
			a.vm.Fail("open chat", err)
			return
		}
		a.app.QueueUpdateDraw(func() { a.showThread(chatID) })
	}()
}

func (a *App) showThread(chatID string) {
	name := a.vm.Partner().Username
	if name == "" {
		if c, ok := a.convList.Lookup(chatID); ok && c.WithUser != "" {
			name = c.WithUser
		} else {
			name = chatID
		}
	}
	a.thread.SetChat(chatID, name)
	a.thread.Update(a.vm.Messages(), a.vm.Status().UserID)
	a.thread.SetTyping("")
	if a.pages.Current() != pageThread {
		a.pages.Reset(pageChats)
		a.pages.Push(pageThread)
	}
	a.focusCurrent()
}

func (a *App) showDetails() {
	chatID := a.vm.ActiveChat()
	if chatID == "" {
		return
	}
	d := views.ChatDetails{ChatID: chatID, Partner: a.vm.Partner()}
	d.Summary, _ = a.convList.Lookup(chatID)
	if a.opts.ChatLink != nil {
		if link, err := a.opts.ChatLink(chatID); err == nil {
			d.Link = link
		}
	}
	a.info.Update(d)
	a.push(pageInfo)
}

// queueInput hands composer text to inputLoop, keeping only the latest.
func (a *App) queueInput(text string) {
	for {
		select {
		case a.inputCh <- text:
			return
		default:
		}
		select {
		case <-a.inputCh:
		default:
		}
	}
}

func (a *App) inputLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case text := <-a.inputCh:
			_ = a.vm.InputChanged(a.ctx, text)
		}
	}
}

func (a *App) loadChats() {
	a.vm.Fail("load chats", a.vm.LoadChats(a.ctx))
}

func (a *App) bootstrap() {
	if err := a.vm.LoadStatus(a.ctx); err != nil {
		a.vm.Fail("daemon status", err)
		return
	}
	if a.vm.NeedsLogin() {
		return
	}
	a.loadChats()
}

func (a *App) render() {
	st := a.vm.Status()
	room := st.Partner.Username
	if room == "" {
		room = st.ActiveChat
	}
	a.sessionInfo.Update(&ui.SessionData{
		Profile:  a.opts.Profile,
		User:     st.Username,
		State:    st.State,
		Room:     room,
		Chats:    st.CachedChats,
		Messages: st.CachedMsgs,
		Uptime:   time.Duration(st.UptimeMs) * time.Millisecond,
	})
	a.statusBar.SetState(st.State, st.Username, st.Refreshing)
	a.statusBar.SetOffline(a.vm.ChatsCached())
	a.convList.Update(a.vm.Chats(), a.vm.ChatsCached())

	if active := a.vm.ActiveChat(); active != "" && active == a.thread.ChatID() {
		a.thread.Update(a.vm.Messages(), st.UserID)
		a.thread.SetTyping(model.TypingLine(a.vm.Typing()))
	}
	a.flashBar.Update(a.vm.Flash.GetMessage())
	a.updateChrome()

	if a.vm.NeedsLogin() && !a.loginShown {
		a.loginShown = true
		a.login.ShowMessage("Log in with your campus account")
		a.pages.Reset(pageLogin)
		a.focusCurrent()
	}
}

// updateChrome redraws the breadcrumbs and menu, which follow unread
// counts and typing as well as page changes.
func (a *App) updateChrome() {
	a.crumbs.Update(a.pages.Trail())
	a.menu.Update(a.pages.Hints())
}

func (a *App) watchRefresh() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.RefreshCh():
		case <-a.vm.Flash.Watch():
		case <-ticker.C:
			a.vm.Refetch(a.ctx, model.ReloadStatus)
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	defer a.cancel()
	go a.bootstrap()
	go a.watchRefresh()
	go a.inputLoop()
	go a.vm.Run(a.ctx)
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.pages.Each(func(_ string, c ui.Component) { c.Stop() })
	a.cancel()
	a.app.Stop()
}
