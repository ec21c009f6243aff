package style

import (
	"strings"
	"testing"
)

func TestDisplayWidthCountsWideRunesAsTwo(t *testing.T) {
	if got := displayWidth("abc"); got != 3 {
		t.Errorf("displayWidth(abc) = %d, want 3", got)
	}
	if got := displayWidth("日本語"); got != 6 {
		t.Errorf("displayWidth(日本語) = %d, want 6", got)
	}
}

func TestTruncateToWidthStopsBeforeOverflow(t *testing.T) {
	if got := truncateToWidth("abcdef", 3); got != "abc" {
		t.Errorf("truncateToWidth = %q, want abc", got)
	}
	if got := truncateToWidth("abc", 0); got != "" {
		t.Errorf("truncateToWidth with zero width = %q, want empty", got)
	}
}

func TestStripAnsiRemovesEscapeCodes(t *testing.T) {
	got := stripAnsi("\x1b[1mbold\x1b[0m")
	if got != "bold" {
		t.Errorf("stripAnsi = %q, want bold", got)
	}
}

func TestAddRowPadsShortRows(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 5}, Column{Name: "B", Width: 5})
	tbl.AddRow("only-a")
	if len(tbl.rows[0]) != 2 {
		t.Fatalf("expected AddRow to pad to 2 columns, got %v", tbl.rows[0])
	}
	if tbl.rows[0][1] != "" {
		t.Errorf("expected the padded column to be empty, got %q", tbl.rows[0][1])
	}
}

func TestRenderProducesHeaderAndRows(t *testing.T) {
	tbl := NewTable(Column{Name: "NAME", Width: 10}, Column{Name: "STATE", Width: 8})
	tbl.AddRow("agent-1", "RUNNING")
	out := tbl.Render()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "agent-1") || !strings.Contains(out, "RUNNING") {
		t.Errorf("Render output missing expected content: %q", out)
	}
}

func TestRenderTruncatesOverlongValues(t *testing.T) {
	tbl := NewTable(Column{Name: "NAME", Width: 5})
	tbl.AddRow("this-is-a-very-long-value")
	out := tbl.Render()
	if !strings.Contains(out, "...") {
		t.Errorf("expected an overlong value to be truncated with an ellipsis, got %q", out)
	}
}
