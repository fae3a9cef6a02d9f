package download

import "fmt"

// Strategy locates download-control candidates for one table row. XPath
// receives the table id and the zero-based snapshot row index.
type Strategy struct {
	Name  string
	XPath func(tableID string, row int) string
}

// DefaultStrategies returns the locator strategies in priority order, from
// the exact cell layout to progressively looser row-scoped queries.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "cell-image",
			XPath: func(id string, row int) string {
				return fmt.Sprintf("//*[@id='%s']/tbody/tr[%d]/td[3]/a/img", id, row+1)
			},
		},
		{
			Name: "cell-anchor",
			XPath: func(id string, row int) string {
				return fmt.Sprintf("//*[@id='%s']/tbody/tr[%d]/td[3]/a", id, row+1)
			},
		},
		{
			Name: "row-spreadsheet-icon",
			XPath: func(id string, row int) string {
				return fmt.Sprintf("//table[@id='%s']//tr[%d]//a[.//img[contains(@src, 'excel.svg')]]", id, row+1)
			},
		},
		{
			Name: "row-any-image",
			XPath: func(id string, row int) string {
				return fmt.Sprintf("//table[@id='%s']//tr[%d]//td[3]//a[.//img]", id, row+1)
			},
		},
	}
}

// rowXPath selects the body row itself, for diagnostics.
func rowXPath(id string, row int) string {
	return fmt.Sprintf("//*[@id='%s']/tbody/tr[%d]", id, row+1)
}
