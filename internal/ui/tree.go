package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// TreeItem is one labelled node of a rendered tree.
type TreeItem struct {
	Label    string
	Detail   string // muted suffix, e.g. a type name
	Dim      bool   // render the whole label muted
	Children []TreeItem
}

// RenderTree draws items as a forest, one lipgloss tree per top-level item.
func RenderTree(items []TreeItem) string {
	out := ""
	for _, it := range items {
		out += buildTree(it).String() + "\n"
	}
	return out
}

func buildTree(it TreeItem) *tree.Tree {
	t := tree.Root(treeLabel(it)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(Muted.PaddingRight(1))
	for _, c := range it.Children {
		if len(c.Children) == 0 {
			t.Child(treeLabel(c))
			continue
		}
		t.Child(buildTree(c))
	}
	return t
}

func treeLabel(it TreeItem) string {
	label := it.Label
	style := lipgloss.NewStyle()
	if len(it.Children) > 0 {
		style = Accent
	}
	if it.Dim {
		style = Muted
	}
	label = style.Render(label)
	if it.Detail != "" {
		label += " " + Muted.Render(it.Detail)
	}
	return label
}
