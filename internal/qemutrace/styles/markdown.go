package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/x/exp/charmtone"
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

// GetMarkdownRenderer returns a renderer for snapshot reports wrapped at width.
// Plain disables colour entirely.
func GetMarkdownRenderer(width int, plain bool) (*glamour.TermRenderer, error) {
	style := GetMarkdownStyle()
	if plain {
		style = GetPlainStyle()
	}
	return glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
}

// GetMarkdownStyle colours report headings, register tables and code blocks
// with the charmtone palette.
func GetMarkdownStyle() ansi.StyleConfig {
	cfg := GetPlainStyle()
	cfg.Document.Color = stringPtr(charmtone.Smoke.Hex())
	cfg.Heading.Color = stringPtr(charmtone.Malibu.Hex())
	cfg.H1.Color = stringPtr(charmtone.Zest.Hex())
	cfg.H1.BackgroundColor = stringPtr(charmtone.Charple.Hex())
	cfg.H3.Color = stringPtr(charmtone.Guac.Hex())
	cfg.Code.Color = stringPtr(charmtone.Malibu.Hex())
	cfg.CodeBlock.Color = stringPtr(charmtone.Charcoal.Hex())
	cfg.Strong.Color = stringPtr(charmtone.Coral.Hex())
	cfg.HorizontalRule.Color = stringPtr(charmtone.Charcoal.Hex())
	return cfg
}

// GetPlainStyle is the layout of GetMarkdownStyle without colours.
func GetPlainStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{Margin: uintPtr(1)},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{BlockSuffix: "\n", Bold: boolPtr(true)},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{Prefix: " ", Suffix: " ", Bold: boolPtr(true)},
		},
		H2:     ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{Prefix: "## "}},
		H3:     ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{Prefix: "### "}},
		Strong: ansi.StylePrimitive{Bold: boolPtr(true)},
		Emph:   ansi.StylePrimitive{Italic: boolPtr(true)},
		HorizontalRule: ansi.StylePrimitive{
			Format: "\n--------\n",
		},
		List: ansi.StyleList{LevelIndent: 2},
		Item: ansi.StylePrimitive{BlockPrefix: "• "},
		Code: ansi.StyleBlock{},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{Margin: uintPtr(2)},
		},
		Table: ansi.StyleTable{
			CenterSeparator: stringPtr("┼"),
			ColumnSeparator: stringPtr("│"),
			RowSeparator:    stringPtr("─"),
		},
	}
}
