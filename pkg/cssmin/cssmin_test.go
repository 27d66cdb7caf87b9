package cssmin

import (
	"testing"

	"github.com/dtnitsch/pagespeed-ai/pkg/compose"
)

func TestMinify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "whitespace and comments",
			in:   "a  { color : red ; }\n/* c */ b,c{x:y}",
			want: "a{color:red}b,c{x:y}",
		},
		{
			name: "descendant pseudo kept apart",
			in:   "ul :first-child { margin: 0 }",
			want: "ul :first-child{margin:0}",
		},
		{
			name: "child combinator",
			in:   "nav > a { padding: 1px 2px }",
			want: "nav>a{padding:1px 2px}",
		},
		{
			name: "calc keeps operator spacing",
			in:   ".w { width: calc(100% - 2px); }",
			want: ".w{width:calc(100% - 2px)}",
		},
		{
			name: "strings untouched",
			in:   `q::before { content: "a  ;  b" }`,
			want: `q::before{content:"a  ;  b"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Minify(tt.in); got != tt.want {
				t.Errorf("Minify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMinify_Preamble(t *testing.T) {
	want := "html,body{margin:0;padding:0;box-sizing:border-box}*,*::before,*::after{box-sizing:inherit}"
	if got := Minify(compose.Preamble); got != want {
		t.Errorf("Minify(Preamble) = %q, want %q", got, want)
	}
}
