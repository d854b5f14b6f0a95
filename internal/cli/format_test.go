package cli

import (
	"strings"
	"testing"
)

func TestFormatCost(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{0.00005, "$0.000050"},
		{0.0005, "$0.0005"},
		{0.0125, "$0.01"},
		{1.5, "$1.50"},
		{12.34, "$12.3"},
		{250, "$250"},
		{12345.6, "$12,346"},
	}
	for _, tt := range tests {
		if got := FormatCost(tt.in); got != tt.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTokensAndNumber(t *testing.T) {
	if got := FormatTokens(1234); got != "1.2K" {
		t.Errorf("FormatTokens = %q", got)
	}
	if got := FormatTokens(999); got != "999" {
		t.Errorf("FormatTokens = %q", got)
	}
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Errorf("FormatNumber = %q", got)
	}
	if got := FormatNumber(-1000); got != "-1,000" {
		t.Errorf("FormatNumber = %q", got)
	}
}

func TestFormatLatency(t *testing.T) {
	if got := FormatLatency(0.85); got != "850ms" {
		t.Errorf("got %q", got)
	}
	if got := FormatLatency(2.44); got != "2.4s" {
		t.Errorf("got %q", got)
	}
	if got := FormatLatency(0); got != "-" {
		t.Errorf("got %q", got)
	}
}

func TestRenderTableContainsCells(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Model", "Calls"},
		Rows: [][]string{
			{"openai/gpt-4o", "12"},
			SeparatorRow,
			{"Total", "12"},
		},
	})
	for _, want := range []string{"Model", "openai/gpt-4o", "Total", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Error("empty table should render nothing")
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 1}); got != "▁█" {
		t.Errorf("sparkline = %q", got)
	}
	if got := RenderSparkline([]float64{0, 0}); got != "▁▁" {
		t.Errorf("flat sparkline = %q", got)
	}
}
