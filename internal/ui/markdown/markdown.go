// Package markdown renders commit messages for the details pane.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/zjrosen/lanes/internal/git"
)

// noMarginStyle removes document margins. It inherits from auto
// (dark/light detection) but overrides margin to 0.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps glamour with lanes-specific configuration.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// New creates a markdown renderer with the given width.
func New(width int) (*Renderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Render transforms markdown to styled terminal output.
func (r *Renderer) Render(markdown string) (string, error) {
	return r.renderer.Render(markdown)
}

// CommitSource returns the markdown shown for a commit: the subject as a
// heading followed by the body. Body text is kept as written, since most
// commit bodies are already plain markdown.
func CommitSource(c git.Commit) string {
	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(c.Subject())
	sb.WriteString("\n")
	if body := c.Body(); body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderCommit renders a commit message. A rendering failure falls back to
// the raw message.
func (r *Renderer) RenderCommit(c git.Commit) string {
	out, err := r.Render(CommitSource(c))
	if err != nil {
		return strings.TrimSpace(c.Message)
	}
	return strings.TrimRight(out, "\n")
}
