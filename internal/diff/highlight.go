package diff

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Token is a syntax-classified fragment of a line.
type Token struct {
	Class string // Short CSS class, e.g. "k" for keywords; empty for plain text
	Text  string
	Type  chroma.TokenType
}

// Highlighter tokenizes code lines with chroma. Lexers are resolved by file
// name and cached.
type Highlighter struct {
	style *chroma.Style

	mu     sync.Mutex
	lexers map[string]chroma.Lexer
}

// NewHighlighter creates a Highlighter using the named chroma style, falling
// back to the default style for unknown names.
func NewHighlighter(styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{style: style, lexers: make(map[string]chroma.Lexer)}
}

func (h *Highlighter) lexer(filename string) chroma.Lexer {
	ext := strings.ToLower(filepath.Ext(filename))
	key := ext
	if key == "" {
		key = filepath.Base(filename)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.lexers[key]; ok {
		return l
	}
	l := lexers.Match(filepath.Base(filename))
	if l == nil {
		l = lexers.Fallback
	}
	l = chroma.Coalesce(l)
	h.lexers[key] = l
	return l
}

// Tokens splits one line of code into classified tokens. Tokenizer errors
// degrade to a single plain token.
func (h *Highlighter) Tokens(filename, line string) []Token {
	if line == "" {
		return nil
	}
	iter, err := h.lexer(filename).Tokenise(nil, line)
	if err != nil {
		return []Token{{Text: line, Type: chroma.Text}}
	}

	var tokens []Token
	for _, t := range iter.Tokens() {
		text := strings.TrimSuffix(t.Value, "\n")
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{Class: chroma.StandardTypes[t.Type], Text: text, Type: t.Type})
	}
	return tokens
}

// HTML renders a line as escaped span markup with chroma's short classes.
func (h *Highlighter) HTML(filename, line string) string {
	var sb strings.Builder
	for _, t := range h.Tokens(filename, line) {
		if t.Class == "" {
			sb.WriteString(escape(t.Text))
			continue
		}
		sb.WriteString(`<span class="`)
		sb.WriteString(t.Class)
		sb.WriteString(`">`)
		sb.WriteString(escape(t.Text))
		sb.WriteString(`</span>`)
	}
	return sb.String()
}

// Terminal renders a line with foreground colours from the chroma style.
func (h *Highlighter) Terminal(filename, line string) string {
	var sb strings.Builder
	for _, t := range h.Tokens(filename, line) {
		entry := h.style.Get(t.Type)
		if !entry.Colour.IsSet() {
			sb.WriteString(t.Text)
			continue
		}
		st := lipgloss.NewStyle().Foreground(lipgloss.Color(entry.Colour.String()))
		if entry.Bold == chroma.Yes {
			st = st.Bold(true)
		}
		sb.WriteString(st.Render(t.Text))
	}
	return sb.String()
}
