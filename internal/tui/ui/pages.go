package ui

import "github.com/rivo/tview"

// Pages is the page stack of the chat window. The root page is never
// popped, and since every page is a Component the stack also yields the
// breadcrumb trail and the hints of the page on top.
type Pages struct {
	*tview.Pages
	components map[string]Component
	order      []string
	stack      []string
	onChange   func()
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages:      tview.NewPages(),
		components: make(map[string]Component),
	}
}

// Add registers c under name, hidden.
func (p *Pages) Add(name string, c Component) {
	if _, ok := p.components[name]; !ok {
		p.order = append(p.order, name)
	}
	p.components[name] = c
	p.AddPage(name, c, true, false)
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func()) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the page already on top
// does nothing.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Pop removes the top page and returns its name. The root page stays, so
// Pop returns "" at depth one.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.Current())
	return top
}

// Reset makes name the only page on the stack.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

// Current returns the page on top, or "".
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Depth returns the stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Trail returns the crumbs of every page on the stack, root first.
func (p *Pages) Trail() []Crumb {
	trail := make([]Crumb, 0, len(p.stack))
	for _, name := range p.stack {
		if c, ok := p.components[name]; ok {
			trail = append(trail, c.Crumb())
		} else {
			trail = append(trail, Crumb{Label: name})
		}
	}
	return trail
}

// Hints returns the hints of the page on top.
func (p *Pages) Hints() []MenuHint {
	if c, ok := p.components[p.Current()]; ok {
		return c.Hints()
	}
	return nil
}

// Each calls fn for every registered page in the order they were added.
func (p *Pages) Each(fn func(name string, c Component)) {
	for _, name := range p.order {
		fn(name, p.components[name])
	}
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange()
	}
}
