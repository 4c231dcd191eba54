package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type sampleTable struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (s sampleTable) Table() Table {
	return Table{
		Headers: []string{"NAME", "VALUE"},
		Rows:    [][]string{{s.Name, fmt.Sprint(s.Value)}, {"other", "12345"}},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter_Plain(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), "test message\n")
	}
}

func TestTextFormatter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, sampleTable{Name: "a", Value: 1}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	if lines[0] != "NAME   VALUE" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "a      1" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&JSONFormatter{Indent: true}).FormatTo(buf, sampleTable{Name: "a", Value: 1}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var got sampleTable
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("FormatTo() produced invalid JSON: %v", err)
	}
	if got.Name != "a" || got.Value != 1 {
		t.Errorf("round trip = %+v", got)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&CSVFormatter{}).FormatTo(buf, sampleTable{Name: "a,b", Value: 1}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "NAME,VALUE\n\"a,b\",1\nother,12345\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}
}

func TestCSVFormatter_NotTabular(t *testing.T) {
	if err := (&CSVFormatter{}).FormatTo(&bytes.Buffer{}, 42); err == nil {
		t.Error("FormatTo() expected error for non-tabular data")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		if got := fmt.Sprintf("%T", NewFormatter(tt.format)); got != tt.want {
			t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
		}
	}
}
