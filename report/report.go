// Package report renders finished research reports to markdown and persists
// them on disk so completed runs leave an artifact behind.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sgrlab/deepresearch/core"
)

// Render produces the full markdown document for a finished report: title,
// metadata, body and a numbered source appendix.
func Render(rep core.Report, task string, sources []core.Source) string {
	var sb strings.Builder
	sb.WriteString("# " + rep.Title + "\n\n")
	if task != "" {
		sb.WriteString("*Task: " + task + "*\n\n")
	}
	if rep.Confidence != "" {
		sb.WriteString("*Confidence: " + rep.Confidence + "*\n\n")
	}
	sb.WriteString(strings.TrimSpace(rep.Body))
	sb.WriteString("\n")
	if len(sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, src := range sources {
			sb.WriteString(src.String() + "\n")
		}
	}
	return sb.String()
}

// Store writes rendered reports into a directory.
type Store struct {
	dir string
}

// NewStore creates a report store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store { return &Store{dir: dir} }

// Save renders and writes the report, returning the file path. Filenames
// combine a timestamp with the sanitized title so repeated runs never
// collide.
func (s *Store) Save(rep core.Report, task string, sources []core.Source) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.md", time.Now().Format("20060102_150405"), sanitize(rep.Title))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(Render(rep, task, sources)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// sanitize reduces a title to a safe filename fragment.
func sanitize(title string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				sb.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(sb.String(), "_")
	if out == "" {
		out = "report"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}
