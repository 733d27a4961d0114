package cel

import (
	"fmt"
	"regexp"
	"strings"
)

// Compact search form: whitespace-separated terms, each either a bare word
// (matches subject or snippet) or field:value with an optional leading "-"
// for negation. Values may be double-quoted to include spaces. Matching is
// case-insensitive. A query whose terms do not all fit this grammar is
// treated as a raw CEL expression instead.

var (
	fieldTermRe = regexp.MustCompile(`^(-)?(from|to|subject|label):(.+)$`)
	bareWordRe  = regexp.MustCompile(`^[A-Za-z0-9@._+\-]+$`)
)

// TranslateSearchQuery converts the compact search form into an equivalent
// CEL expression. ok is false when the query is not search syntax.
func TranslateSearchQuery(query string) (string, bool) {
	terms := splitTerms(query)
	if len(terms) == 0 {
		return "", false
	}

	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		expr, ok := translateTerm(term)
		if !ok {
			return "", false
		}
		parts = append(parts, expr)
	}

	return strings.Join(parts, " && "), true
}

func translateTerm(term string) (string, bool) {
	if m := fieldTermRe.FindStringSubmatch(term); m != nil {
		negated := m[1] == "-"
		value := unquote(m[3])
		if value == "" {
			return "", false
		}

		lit := quoteLiteral(strings.ToLower(value))
		var expr string
		switch m[2] {
		case "from":
			expr = fmt.Sprintf("from.lowerAscii().contains(%s)", lit)
		case "to":
			expr = fmt.Sprintf("to.exists(r, r.lowerAscii().contains(%s))", lit)
		case "subject":
			expr = fmt.Sprintf("subject.lowerAscii().contains(%s)", lit)
		case "label":
			expr = fmt.Sprintf("labels.exists(l, l.lowerAscii() == %s)", lit)
		}

		if negated {
			expr = "!(" + expr + ")"
		}
		return expr, true
	}

	word := term
	negated := false
	if strings.HasPrefix(word, "-") {
		negated = true
		word = word[1:]
	}
	if quoted := unquote(word); quoted != word {
		word = quoted
	} else if !bareWordRe.MatchString(word) {
		return "", false
	}
	if word == "" {
		return "", false
	}

	lit := quoteLiteral(strings.ToLower(word))
	expr := fmt.Sprintf("(subject.lowerAscii().contains(%s) || snippet.lowerAscii().contains(%s))", lit, lit)
	if negated {
		expr = "!" + expr
	}
	return expr, true
}

// splitTerms splits on whitespace while keeping double-quoted sections,
// including field:"quoted value" terms, together.
func splitTerms(query string) []string {
	var terms []string
	var current strings.Builder
	inQuotes := false

	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case !inQuotes && (r == ' ' || r == '\t' || r == '\n'):
			if current.Len() > 0 {
				terms = append(terms, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuotes {
		return nil
	}
	if current.Len() > 0 {
		terms = append(terms, current.String())
	}
	return terms
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
