package ui

import (
	"strings"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
)

// MarkdownRenderMargin is the left margin used for terminal markdown rendering.
const MarkdownRenderMargin = 2

const defaultCodeTheme = "monokai"

var markdownCodeTheme = defaultCodeTheme

// ConfigureMarkdownCodeTheme selects the chroma style used for fenced code.
// Unknown names fall back to the default.
func ConfigureMarkdownCodeTheme(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, known := range styles.Names() {
		if strings.ToLower(known) == name {
			markdownCodeTheme = known
			return
		}
	}
	markdownCodeTheme = defaultCodeTheme
}

// RenderMarkdown renders markdown content, such as note bodies, for terminal
// display.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = maxTextWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(kilnMarkdownStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return "", err
	}

	// glamour adds trailing newlines; normalize to a single trailing newline.
	rendered = strings.TrimRight(rendered, "\n") + "\n"
	return rendered, nil
}

func kilnMarkdownStyle() ansi.StyleConfig {
	muted := mdStringPtr("8")
	var accent *string
	if color, ok := AccentColor(); ok {
		accent = mdStringPtr(color)
	}

	// Headings keep their markdown prefix; the top two levels are underlined.
	heading := func(level int) ansi.StyleBlock {
		p := ansi.StylePrimitive{Prefix: strings.Repeat("#", level) + " "}
		if level <= 2 {
			p.Underline = mdBoolPtr(true)
		}
		if level == 6 {
			p.Bold = mdBoolPtr(false)
		}
		return ansi.StyleBlock{StylePrimitive: p}
	}
	plain := func(p ansi.StylePrimitive) ansi.StyleBlock { return ansi.StyleBlock{StylePrimitive: p} }

	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{BlockPrefix: "\n", BlockSuffix: "\n"},
			Margin:         mdUintPtr(MarkdownRenderMargin),
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{Color: muted},
			Indent:         mdUintPtr(1),
			IndentToken:    mdStringPtr("│ "),
		},
		List: ansi.StyleList{LevelIndent: 2},
		Heading: plain(ansi.StylePrimitive{
			BlockSuffix: "\n",
			Color:       accent,
			Bold:        mdBoolPtr(true),
		}),
		H1: heading(1),
		H2: heading(2),
		H3: heading(3),
		H4: heading(4),
		H5: heading(5),
		H6: heading(6),

		Strikethrough: ansi.StylePrimitive{CrossedOut: mdBoolPtr(true)},
		Emph:          ansi.StylePrimitive{Italic: mdBoolPtr(true)},
		Strong:        ansi.StylePrimitive{Bold: mdBoolPtr(true)},
		HorizontalRule: ansi.StylePrimitive{
			Color:  muted,
			Format: "\n────────\n",
		},
		Item:        ansi.StylePrimitive{BlockPrefix: "• "},
		Enumeration: ansi.StylePrimitive{BlockPrefix: ". "},
		Task:        ansi.StyleTask{Ticked: "[x] ", Unticked: "[ ] "},

		Link:      ansi.StylePrimitive{Color: muted, Underline: mdBoolPtr(true)},
		LinkText:  ansi.StylePrimitive{Color: accent, Bold: mdBoolPtr(true)},
		Image:     ansi.StylePrimitive{Underline: mdBoolPtr(true)},
		ImageText: ansi.StylePrimitive{Color: muted, Format: "Image: {{.text}} →"},

		Code: plain(ansi.StylePrimitive{Prefix: "`", Suffix: "`", Color: mdStringPtr("203")}),
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{Color: mdStringPtr("244")},
				Margin:         mdUintPtr(MarkdownRenderMargin),
			},
			Theme: markdownCodeTheme,
		},
		Table: ansi.StyleTable{
			CenterSeparator: mdStringPtr("┼"),
			ColumnSeparator: mdStringPtr("│"),
			RowSeparator:    mdStringPtr("─"),
		},
		DefinitionDescription: ansi.StylePrimitive{BlockPrefix: "\n- "},
	}
}

func mdBoolPtr(v bool) *bool { return &v }

func mdStringPtr(v string) *string { return &v }

func mdUintPtr(v uint) *uint { return &v }
