// Package prompts renders the system prompt that frames every model call.
// The template is embedded so the binary is self-contained; an override
// directory lets operators ship their own wording without rebuilding.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/sgrlab/deepresearch/core"
)

//go:embed system_prompt.tmpl
var builtin embed.FS

const systemPromptFile = "system_prompt.tmpl"

// ToolInfo describes one selectable action for the prompt's action list.
type ToolInfo struct {
	Name        string
	Description string
}

// Data feeds the system prompt template.
type Data struct {
	CurrentDate string
	UserRequest string
	Tools       []ToolInfo
	Sources     []core.Source
}

// Renderer loads and renders the system prompt.
type Renderer struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// New builds a renderer from the embedded template. If overrideDir is
// non-empty and contains system_prompt.tmpl, that file wins.
func New(overrideDir string) (*Renderer, error) {
	text, err := loadTemplate(overrideDir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(systemPromptFile).Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func loadTemplate(overrideDir string) (string, error) {
	if overrideDir != "" {
		path := filepath.Join(overrideDir, systemPromptFile)
		if b, err := os.ReadFile(path); err == nil {
			return string(b), nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("read prompt override %s: %w", path, err)
		}
	}
	b, err := builtin.ReadFile(systemPromptFile)
	if err != nil {
		return "", fmt.Errorf("read embedded prompt: %w", err)
	}
	return string(b), nil
}

// System renders the system prompt for one model call.
func (r *Renderer) System(data Data) (string, error) {
	if data.CurrentDate == "" {
		data.CurrentDate = time.Now().Format("2006-01-02 15:04:05")
	}
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
