package core

import "fmt"

// Source is a deduplicated research artifact retained as evidence. The URL
// is the unique key within an agent context; a Source is immutable once
// collected. StepFound records the reasoning step at which it was discovered.
type Source struct {
	Number    int    `json:"number"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	StepFound int    `json:"step_found"`
}

// String renders the citation form used in reports and prompts.
func (s Source) String() string {
	title := s.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("[%d] %s - %s", s.Number, title, s.URL)
}

// Report is the terminal result of a completed research task. Location is
// the storage path returned by the report persistence collaborator and may
// be empty when persistence failed (the content itself is still valid).
type Report struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Confidence string   `json:"confidence"`
	Citations  []Source `json:"citations"`
	Location   string   `json:"location,omitempty"`
}
