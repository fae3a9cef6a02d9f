// Package navigation brings a statistics page into the state the table
// reader expects: overlays dismissed, statistics tab active, target
// element on screen.
package navigation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
)

// ScrollIntoView centers the first element matching xpath in the viewport.
func ScrollIntoView(ctx context.Context, s browser.Session, xpath string) error {
	arg, err := json.Marshal(xpath)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`
		(function(xp) {
			const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			if (n) n.scrollIntoView({block: 'center'});
			return !!n;
		})(%s)
	`, arg)
	var found bool
	if err := s.Evaluate(ctx, script, &found); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	if !found {
		return fmt.Errorf("scroll failed: no element at %s", xpath)
	}
	return nil
}
