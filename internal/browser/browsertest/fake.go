// Package browsertest provides an in-memory browser.Session whose page
// state is declared per XPath, for exercising the retrieval pipeline
// without a browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
)

// Fake is a scriptable browser.Session. Waits never block: a query that is
// not declared clickable or present fails immediately with
// context.DeadlineExceeded, as a real wait would after its timeout.
type Fake struct {
	mu sync.Mutex

	Clickable map[string]bool
	Present   map[string]bool
	Nodes     map[string][]browser.Element
	ClickErr  map[string]error

	NavigateErr error
	ReloadErr   error
	LoadedErr   error
	EvalErr     error

	// OnReload runs after every successful Reload.
	OnReload func(f *Fake)
	// OnClick runs after every successful Click.
	OnClick func(f *Fake, xpath string) error
	// OnEvaluate, when set, produces the result of every Evaluate.
	OnEvaluate func(script string, res any) error

	URL     string
	Reloads int
	Clicks  []string
	Scripts []string
	Calls   []string
	Closed  bool
}

var _ browser.Session = (*Fake)(nil)

// New returns an empty Fake page.
func New() *Fake {
	return &Fake{
		Clickable: map[string]bool{},
		Present:   map[string]bool{},
		Nodes:     map[string][]browser.Element{},
		ClickErr:  map[string]error{},
	}
}

// SetNodes declares the elements matched by xpath.
func (f *Fake) SetNodes(xpath string, els ...browser.Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nodes[xpath] = els
}

// SetClickable declares whether xpath is visible and enabled.
func (f *Fake) SetClickable(xpath string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clickable[xpath] = ok
}

// CallLog returns a copy of the recorded calls.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate %s", url)
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.URL = url
	return nil
}

func (f *Fake) Reload(context.Context) error {
	f.mu.Lock()
	f.record("reload")
	if f.ReloadErr != nil {
		f.mu.Unlock()
		return f.ReloadErr
	}
	f.Reloads++
	hook := f.OnReload
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) WaitLoaded(context.Context, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait-loaded")
	return f.LoadedErr
}

func (f *Fake) WaitClickable(_ context.Context, xpath string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait-clickable %s", xpath)
	if f.Clickable[xpath] {
		return nil
	}
	return fmt.Errorf("waiting for %s: %w", xpath, context.DeadlineExceeded)
}

func (f *Fake) WaitPresent(_ context.Context, xpath string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait-present %s", xpath)
	if f.Present[xpath] || len(f.Nodes[xpath]) > 0 {
		return nil
	}
	return fmt.Errorf("waiting for %s: %w", xpath, context.DeadlineExceeded)
}

func (f *Fake) Elements(_ context.Context, xpath string) ([]browser.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("elements %s", xpath)
	return append([]browser.Element(nil), f.Nodes[xpath]...), nil
}

func (f *Fake) Click(_ context.Context, xpath string) error {
	f.mu.Lock()
	f.record("click %s", xpath)
	if err := f.ClickErr[xpath]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.Clicks = append(f.Clicks, xpath)
	hook := f.OnClick
	f.mu.Unlock()

	if hook != nil {
		return hook(f, xpath)
	}
	return nil
}

func (f *Fake) Evaluate(_ context.Context, script string, res any) error {
	f.mu.Lock()
	f.record("evaluate")
	f.Scripts = append(f.Scripts, script)
	if f.EvalErr != nil {
		f.mu.Unlock()
		return f.EvalErr
	}
	hook := f.OnEvaluate
	f.mu.Unlock()

	if hook != nil {
		return hook(script, res)
	}
	return nil
}

func (f *Fake) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
}
