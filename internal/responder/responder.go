// Package responder produces canned help replies from free text. It keeps
// no state and does no I/O.
package responder

import "strings"

type Engine struct {
	menu       string
	categories []compiledCategory
	shortcuts  map[string]string
}

type compiledCategory struct {
	name     string
	keywords []string
	reply    string
}

// New builds an engine from a catalog. The catalog is validated first.
func New(c Catalog) (*Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		menu:      c.Menu,
		shortcuts: make(map[string]string, len(c.Shortcuts)),
	}
	byName := make(map[string]compiledCategory, len(c.Categories))
	for _, cat := range c.Categories {
		cc := compiledCategory{name: cat.Name, reply: cat.Reply}
		for _, kw := range cat.Keywords {
			if n := Normalize(kw); n != "" {
				cc.keywords = append(cc.keywords, n)
			}
		}
		e.categories = append(e.categories, cc)
		byName[cc.name] = cc
	}
	for digit, name := range c.Shortcuts {
		// a digit stands for the first keyword of its category
		if cat, ok := byName[name]; ok && len(cat.keywords) > 0 {
			e.shortcuts[digit] = cat.keywords[0]
		}
	}
	return e, nil
}

// Default returns an engine over DefaultCatalog.
func Default() *Engine {
	e, err := New(DefaultCatalog())
	if err != nil {
		panic(err)
	}
	return e
}

// Reply returns the canned answer for input. Unknown input gets the menu.
func (e *Engine) Reply(input string) string {
	_, reply := e.Classify(input)
	return reply
}

// Classify returns the winning category name ("" on fallback) and its reply.
func (e *Engine) Classify(input string) (string, string) {
	text := Normalize(input)
	if kw, ok := e.shortcuts[text]; ok {
		text = kw
	}
	if text == "" {
		return "", e.menu
	}
	for _, cat := range e.categories {
		if !cat.matches(text) {
			continue
		}
		if cat.reply == "" {
			return cat.name, e.menu
		}
		return cat.name, cat.reply
	}
	return "", e.menu
}

// matches is a plain substring test, so "refunds" still hits "refund".
// Category order settles overlaps such as "hi" inside "shipping".
func (c compiledCategory) matches(text string) bool {
	for _, kw := range c.keywords {
		if text == kw || strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Normalize lowercases s, trims it, collapses whitespace runs and strips
// punctuation hugging the words so "Hello!" matches "hello".
func Normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()")
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
