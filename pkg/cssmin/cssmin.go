// Package cssmin strips comments and redundant whitespace from CSS text using
// the tdewolff lexer. Tokens are re-emitted verbatim, so values and strings
// are never rewritten.
package cssmin

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Minify returns a compact form of cssText.
func Minify(cssText string) string {
	l := css.NewLexer(parse.NewInputString(cssText))

	var sb strings.Builder
	sb.Grow(len(cssText))
	depth := 0
	pendingSpace := false
	tightAfter := true // start of output

	for {
		tt, text := l.Next()
		switch tt {
		case css.ErrorToken:
			return sb.String()
		case css.WhitespaceToken, css.CommentToken:
			pendingSpace = true
			continue
		}

		tightBefore := false
		switch tt {
		case css.LeftBraceToken, css.RightBraceToken, css.SemicolonToken, css.CommaToken:
			tightBefore = true
		case css.ColonToken:
			// a space before ':' in a selector is a descendant combinator
			tightBefore = depth > 0
		case css.DelimToken:
			tightBefore = string(text) == ">"
		}

		if pendingSpace && !tightBefore && !tightAfter {
			sb.WriteByte(' ')
		}
		pendingSpace = false

		switch tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			if depth > 0 {
				depth--
			}
			out := sb.String()
			if strings.HasSuffix(out, ";") {
				sb.Reset()
				sb.WriteString(out[:len(out)-1])
			}
		}
		sb.Write(text)

		switch tt {
		case css.LeftBraceToken, css.RightBraceToken, css.SemicolonToken, css.CommaToken, css.ColonToken:
			tightAfter = true
		case css.DelimToken:
			tightAfter = string(text) == ">"
		default:
			tightAfter = false
		}
	}
}
