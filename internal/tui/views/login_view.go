package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/ui"
)

// LoginView asks for the campus account credentials.
type LoginView struct {
	*tview.Flex
	theme   *ui.Theme
	form    *tview.Form
	message *tview.TextView
	onLogin func(username, password string)
}

// NewLoginView creates a new login view.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Log In ")
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.BorderColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)
	message.SetTextColor(theme.FgColor)

	lv := &LoginView{
		theme:   theme,
		form:    form,
		message: message,
	}

	form.AddInputField("Username", "", 32, nil, nil)
	form.AddPasswordField("Password", "", 32, '*', nil)
	form.AddButton("Log in", lv.submit)

	lv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 9, 0, true).
		AddItem(message, 0, 1, false)
	return lv
}

// Crumb implements Component.
func (lv *LoginView) Crumb() ui.Crumb { return ui.Crumb{Label: "Log in"} }

// Init implements Component.
func (lv *LoginView) Init() {}

// Start implements Component.
func (lv *LoginView) Start() {}

// Stop implements Component.
func (lv *LoginView) Stop() {}

// Hints implements Component.
func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Log in", Kind: ui.HintChat},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnLogin sets the callback for submitted credentials.
func (lv *LoginView) SetOnLogin(fn func(username, password string)) {
	lv.onLogin = fn
}

// Form returns the form (for focus management).
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}

// ShowMessage displays a status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "\n%s", tview.Escape(msg))
}

// ShowError displays an error under the form.
func (lv *LoginView) ShowError(err error) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "\n[%s]%s[-]", ui.ColorName(lv.theme.FlashErrColor), tview.Escape(err.Error()))
}

// Reset clears the password field.
func (lv *LoginView) Reset() {
	if item, ok := lv.form.GetFormItemByLabel("Password").(*tview.InputField); ok {
		item.SetText("")
	}
}

func (lv *LoginView) submit() {
	username, password := lv.credentials()
	if username == "" || password == "" {
		lv.ShowMessage("Username and password are required")
		return
	}
	lv.ShowMessage("Logging in...")
	if lv.onLogin != nil {
		lv.onLogin(username, password)
	}
}

func (lv *LoginView) credentials() (string, string) {
	var username, password string
	if item, ok := lv.form.GetFormItemByLabel("Username").(*tview.InputField); ok {
		username = strings.TrimSpace(item.GetText())
	}
	if item, ok := lv.form.GetFormItemByLabel("Password").(*tview.InputField); ok {
		password = item.GetText()
	}
	return username, password
}
