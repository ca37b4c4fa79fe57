// Package rule implements the boolean/regex filter query language used
// to suppress unwanted items.
//
// Grammar, loosest binding first:
//
//	expr   := and { OR and }
//	and    := atom { AND atom }
//	atom   := "quoted phrase" | bareword | /regex/flags | ( expr )
//
// Matching is always case-insensitive. A rule that fails to parse
// degrades to a literal substring match on the whole rule text; an
// invalid regex degrades to a literal substring match on its pattern.
package rule

import (
	"fmt"
	"regexp"
	"strings"
)

type node interface {
	eval(lower string) bool
}

type andNode struct{ children []node }

func (n andNode) eval(lower string) bool {
	for _, c := range n.children {
		if !c.eval(lower) {
			return false
		}
	}
	return true
}

type orNode struct{ children []node }

func (n orNode) eval(lower string) bool {
	for _, c := range n.children {
		if c.eval(lower) {
			return true
		}
	}
	return false
}

type termNode struct{ needle string }

func (n termNode) eval(lower string) bool {
	return strings.Contains(lower, n.needle)
}

type regexNode struct{ re *regexp.Regexp }

func (n regexNode) eval(lower string) bool {
	return n.re.MatchString(lower)
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []node{left}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return orNode{children: children}, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	children := []node{left}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			break
		}
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return andNode{children: children}, nil
}

func (p *parser) parseAtom() (node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of rule")
	}
	switch t.kind {
	case tokTerm:
		p.pos++
		return termNode{needle: strings.ToLower(t.text)}, nil
	case tokRegex:
		p.pos++
		return compileRegexAtom(t.text, t.flags), nil
	case tokLParen:
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		t, ok := p.peek()
		if !ok || t.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected operator")
	}
}

// compileRegexAtom builds a regex atom, forced case-insensitive. An
// invalid pattern degrades to a literal substring match on its raw text.
func compileRegexAtom(pattern, flags string) node {
	prefix := "(?i"
	for _, f := range flags {
		switch f {
		case 's', 'm':
			prefix += string(f)
		}
	}
	prefix += ")"

	re, err := regexp.Compile(prefix + pattern)
	if err != nil {
		return termNode{needle: strings.ToLower(pattern)}
	}
	return regexNode{re: re}
}

// parse builds the AST for a rule, or an error when the rule does not
// conform to the grammar.
func parse(rule string) (node, error) {
	toks, err := tokenize(rule)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty rule")
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("trailing tokens after expression")
	}
	return root, nil
}

// Matches reports whether the text matches the rule. Rules are parsed
// fresh on every call; they are never precompiled or persisted as ASTs.
// An unparseable rule is treated as one literal substring needle.
func Matches(text, rule string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}

	lower := strings.ToLower(text)
	root, err := parse(rule)
	if err != nil {
		return strings.Contains(lower, strings.ToLower(rule))
	}
	return root.eval(lower)
}

// Validate reports whether a rule parses cleanly. Callers may still use
// an invalid rule; it will fall back to substring matching.
func Validate(rule string) error {
	_, err := parse(strings.TrimSpace(rule))
	return err
}
