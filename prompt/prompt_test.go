package prompt

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	in := Input{
		Path:         "main.go",
		Content:      "package main",
		Instructions: "handle nil receiver",
	}

	tests := []struct {
		op       Op
		contains []string
	}{
		{OpFix, []string{"Fix bugs", "main.go", "package main", "handle nil receiver", "fenced code block"}},
		{OpRefactor, []string{"Refactor this file", "main.go", "handle nil receiver"}},
		{OpPatch, []string{"complete replacement", "main.go", "Provide only the replacement file"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := Render(tt.op, in)
			if err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestRender_UnknownOp(t *testing.T) {
	if _, err := Render(Op("explode"), Input{}); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}
