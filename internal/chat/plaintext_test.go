package chat

import (
	"strings"
	"testing"
)

func TestCoercePlainText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold and italic stripped",
			in:   "This is **bold** and *italic* text.",
			want: "This is bold and italic text.",
		},
		{
			name: "inline code unwrapped",
			in:   "Run `go version` to check.",
			want: "Run go version to check.",
		},
		{
			name: "link becomes text with url",
			in:   "See [the docs](https://example.com/docs) for details.",
			want: "See the docs (https://example.com/docs) for details.",
		},
		{
			name: "heading stripped",
			in:   "## Summary\nAll good.",
			want: "Summary\nAll good.",
		},
		{
			name: "bullets flattened",
			in:   "- first\n- second",
			want: "first\nsecond",
		},
		{
			name: "ordered list keeps numbering",
			in:   "1. first\n2. second",
			want: "1. first\n2. second",
		},
		{
			name: "inline numbered list split",
			in:   "Steps: 1. open the app 2. tap settings 3. enable it",
			want: "Steps:\n1. open the app\n2. tap settings\n3. enable it",
		},
		{
			name: "non sequential numbers untouched",
			in:   "I was born in 1. place and 5. place",
			want: "I was born in 1. place and 5. place",
		},
		{
			name: "empty input",
			in:   "   ",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CoercePlainText(tc.in); got != tc.want {
				t.Fatalf("CoercePlainText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoercePlainTextCodeFence(t *testing.T) {
	got := CoercePlainText("Here:\n```go\nfmt.Println(\"hi\")\n```\nDone.")
	if strings.Contains(got, "```") {
		t.Fatalf("fence markers survived: %q", got)
	}
	if !strings.Contains(got, `fmt.Println("hi")`) {
		t.Fatalf("fence content lost: %q", got)
	}
}

func TestCoercePlainTextCollapsesBlankLines(t *testing.T) {
	got := CoercePlainText("first\n\n\n\nsecond")
	if got != "first\nsecond" && got != "first\n\nsecond" {
		t.Fatalf("unexpected blank line handling: %q", got)
	}
}
