package rule

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokRegex
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string // term text or regex pattern
	flags string // regex flags, if any
}

// tokenize splits a rule string into the token stream consumed by the
// parser. Quoted phrases keep their inner spacing; regex literals keep
// their raw pattern text.
func tokenize(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case r == '"':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '"' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote at offset %d", i)
			}
			toks = append(toks, token{kind: tokTerm, text: string(runes[i+1 : end])})
			i = end + 1
		case r == '/':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '/' && runes[j-1] != '\\' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated regex at offset %d", i)
			}
			pattern := string(runes[i+1 : end])
			j := end + 1
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			toks = append(toks, token{kind: tokRegex, text: pattern, flags: string(runes[end+1 : j])})
			i = j
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '(' && runes[j] != ')' {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd})
			case "OR":
				toks = append(toks, token{kind: tokOr})
			default:
				toks = append(toks, token{kind: tokTerm, text: word})
			}
			i = j
		}
	}

	return toks, nil
}
