package ui

import (
	"strings"
	"testing"
)

func TestRenderTree(t *testing.T) {
	out := RenderTree([]TreeItem{
		{
			Label: "main",
			Children: []TreeItem{
				{Label: "art", Children: []TreeItem{{Label: "scene.note", Detail: "note"}}},
				{Label: "readme.note", Detail: "note"},
			},
		},
		{Label: "empty"},
	})

	for _, want := range []string{"main", "art", "scene.note", "readme.note", "empty", "note"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "art") > strings.Index(out, "scene.note") {
		t.Errorf("children rendered before parent:\n%s", out)
	}
	if strings.Index(out, "main") > strings.Index(out, "empty") {
		t.Errorf("roots out of order:\n%s", out)
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable("TYPE", "COUNT")
	if tbl.String() != "" {
		t.Fatalf("empty table should render as empty string")
	}
	tbl.AddRow("note", "3")
	tbl.AddRow("texture", "12")
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	out := tbl.String()
	for _, want := range []string{"TYPE", "COUNT", "note", "texture", "12"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCount(t *testing.T) {
	if got := Count(1, "file"); got != "(1 file)" {
		t.Errorf("Count(1) = %q", got)
	}
	if got := Count(3, "file"); got != "(3 files)" {
		t.Errorf("Count(3) = %q", got)
	}
}
