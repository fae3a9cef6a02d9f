// Package batch loads the list of pages to retrieve from a spreadsheet or
// CSV file.
package batch

// Record is one retrieval request: the page to open, the row label to look
// for and a free-form note carried into the summary.
type Record struct {
	Link    string
	Keyword string
	Note    string
	// Row is the 1-based line in the input file, header included.
	Row int
}
