package browser

import (
	"context"
	"errors"
	"strings"
)

// ErrBrowserNotFound is returned when no Chrome/Chromium executable can be
// located. It is fatal: no record can be processed without a browser.
var ErrBrowserNotFound = errors.New("browser: no Chrome/Chromium executable found")

// closedPatterns are fragments of chromedp/websocket errors raised once the
// browser process or its target has gone away.
var closedPatterns = []string{
	"context canceled",
	"websocket: close",
	"target closed",
	"browser: not connected",
	"session closed",
	"page closed",
	"connection refused",
	"broken pipe",
}

// IsBrowserClosed checks if an error indicates the browser was closed, so
// every further command would fail too. A deadline alone is not a closed
// browser: bounded waits report their timeouts as context.DeadlineExceeded.
func IsBrowserClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range closedPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsContextCanceled checks if the context is already done.
func IsContextCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
