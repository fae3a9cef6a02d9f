package browser

import (
	"context"
	"strconv"
	"time"
)

// Element is a snapshot of one DOM element matched by an XPath query.
type Element struct {
	Tag       string `json:"tag"`
	OuterHTML string `json:"html"`
	Href      string `json:"href"`
}

// Session is the capability set the retrieval pipeline needs from a browser
// automation session. Queries are XPath expressions.
//
// A Session is owned by exactly one caller at a time; implementations are
// not required to be safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitLoaded waits for the current document to finish loading.
	WaitLoaded(ctx context.Context, timeout time.Duration) error
	// WaitClickable waits for the first match to be visible and enabled.
	WaitClickable(ctx context.Context, xpath string, timeout time.Duration) error
	// WaitPresent waits for the first match to exist in the DOM.
	WaitPresent(ctx context.Context, xpath string, timeout time.Duration) error
	Elements(ctx context.Context, xpath string) ([]Element, error)
	// Click dispatches element.click() on the first match from script,
	// so overlapping elements cannot intercept it.
	Click(ctx context.Context, xpath string) error
	Evaluate(ctx context.Context, script string, res any) error
	Close()
}

// Nth returns an XPath selecting the i-th (zero-based) match of xpath.
func Nth(xpath string, i int) string {
	return "(" + xpath + ")[" + strconv.Itoa(i+1) + "]"
}

// Parent returns an XPath selecting the parent of the element at xpath.
func Parent(xpath string) string {
	return xpath + "/.."
}
