// Package display parses serialized text components, the JSON form a remote
// chat line uses for its author and content fragments.
package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxDepth = 64

// Component is one displayable unit with optional children.
type Component struct {
	Text          string      `json:"text,omitempty"`
	Translate     string      `json:"translate,omitempty"`
	With          []Component `json:"with,omitempty"`
	Keybind       string      `json:"keybind,omitempty"`
	Color         string      `json:"color,omitempty"`
	Bold          *bool       `json:"bold,omitempty"`
	Italic        *bool       `json:"italic,omitempty"`
	Underlined    *bool       `json:"underlined,omitempty"`
	Strikethrough *bool       `json:"strikethrough,omitempty"`
	Obfuscated    *bool       `json:"obfuscated,omitempty"`
	Extra         []Component `json:"extra,omitempty"`
}

// Text returns a literal component.
func Text(s string) Component { return Component{Text: s} }

// Bracketed wraps c in square brackets.
func Bracketed(c Component) Component {
	return Component{Text: "[", Extra: []Component{c, Text("]")}}
}

// Append returns a copy of c with parts added as children.
func (c Component) Append(parts ...Component) Component {
	extra := make([]Component, 0, len(c.Extra)+len(parts))
	extra = append(extra, c.Extra...)
	c.Extra = append(extra, parts...)
	return c
}

// Plain flattens c and its children to unstyled text.
func (c Component) Plain() string {
	var b strings.Builder
	c.writePlain(&b)
	return b.String()
}

func (c Component) writePlain(b *strings.Builder) {
	switch {
	case c.Translate != "":
		args := make([]string, len(c.With))
		for i, w := range c.With {
			args[i] = w.Plain()
		}
		b.WriteString(substitute(c.Translate, args))
	case c.Keybind != "":
		b.WriteString(c.Keybind)
	default:
		b.WriteString(c.Text)
	}
	for _, e := range c.Extra {
		e.writePlain(b)
	}
}

// JSON returns the serialized form of c.
func (c Component) JSON() string {
	raw, err := json.Marshal(c)
	if err != nil {
		return strconv.Quote(c.Plain())
	}
	return string(raw)
}

// Parse decodes one serialized component: a JSON string or other primitive,
// an object with text, translate or keybind content, or a non-empty array
// whose first element is the parent of the rest.
func Parse(raw string) (Component, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return Component{}, errors.New("empty component")
	}
	if !json.Valid(data) {
		return Component{}, fmt.Errorf("malformed component: %s", abbreviate(raw))
	}
	return parseValue(data, 0)
}

func parseValue(data json.RawMessage, depth int) (Component, error) {
	if depth > maxDepth {
		return Component{}, errors.New("component nesting too deep")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Component{}, errors.New("empty component")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Component{}, err
		}
		return Text(s), nil
	case '{':
		return parseObject(data, depth)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return Component{}, err
		}
		if len(items) == 0 {
			return Component{}, errors.New("unexpected empty array of components")
		}
		parent, err := parseValue(items[0], depth+1)
		if err != nil {
			return Component{}, err
		}
		for _, item := range items[1:] {
			child, err := parseValue(item, depth+1)
			if err != nil {
				return Component{}, err
			}
			parent.Extra = append(parent.Extra, child)
		}
		return parent, nil
	case 'n':
		return Component{}, errors.New("don't know how to turn null into a component")
	default:
		// numbers and booleans render as their literal
		return Text(string(data)), nil
	}
}

func parseObject(data json.RawMessage, depth int) (Component, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Component{}, err
	}

	var c Component
	switch {
	case fields["text"] != nil:
		s, err := primitiveString(fields["text"])
		if err != nil {
			return Component{}, fmt.Errorf("text: %w", err)
		}
		c.Text = s
	case fields["translate"] != nil:
		if err := json.Unmarshal(fields["translate"], &c.Translate); err != nil {
			return Component{}, fmt.Errorf("translate: %w", err)
		}
		if with := fields["with"]; with != nil {
			var args []json.RawMessage
			if err := json.Unmarshal(with, &args); err != nil {
				return Component{}, fmt.Errorf("with: %w", err)
			}
			for _, arg := range args {
				w, err := parseValue(arg, depth+1)
				if err != nil {
					return Component{}, fmt.Errorf("with: %w", err)
				}
				c.With = append(c.With, w)
			}
		}
	case fields["keybind"] != nil:
		if err := json.Unmarshal(fields["keybind"], &c.Keybind); err != nil {
			return Component{}, fmt.Errorf("keybind: %w", err)
		}
	default:
		return Component{}, fmt.Errorf("don't know how to turn %s into a component", abbreviate(string(data)))
	}

	if color := fields["color"]; color != nil {
		if err := json.Unmarshal(color, &c.Color); err != nil {
			return Component{}, fmt.Errorf("color: %w", err)
		}
	}
	styles := []struct {
		key string
		dst **bool
	}{
		{"bold", &c.Bold},
		{"italic", &c.Italic},
		{"underlined", &c.Underlined},
		{"strikethrough", &c.Strikethrough},
		{"obfuscated", &c.Obfuscated},
	}
	for _, st := range styles {
		raw := fields[st.key]
		if raw == nil {
			continue
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return Component{}, fmt.Errorf("%s: %w", st.key, err)
		}
		*st.dst = &v
	}

	if extra := fields["extra"]; extra != nil {
		var items []json.RawMessage
		if err := json.Unmarshal(extra, &items); err != nil {
			return Component{}, fmt.Errorf("extra: %w", err)
		}
		if len(items) == 0 {
			return Component{}, errors.New("unexpected empty array of components")
		}
		for _, item := range items {
			child, err := parseValue(item, depth+1)
			if err != nil {
				return Component{}, err
			}
			c.Extra = append(c.Extra, child)
		}
	}
	return c, nil
}

func primitiveString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[', 'n':
		return "", fmt.Errorf("expected a primitive, got %s", abbreviate(string(raw)))
	default:
		return string(raw), nil
	}
}

// substitute fills %s and %N$s placeholders; %% renders a percent sign.
func substitute(format string, args []string) string {
	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			b.WriteByte(ch)
			continue
		}
		rest := format[i+1:]
		switch {
		case rest[0] == '%':
			b.WriteByte('%')
			i++
		case rest[0] == 's':
			if next < len(args) {
				b.WriteString(args[next])
			}
			next++
			i++
		default:
			j := 0
			for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
				j++
			}
			if j > 0 && j+1 < len(rest) && rest[j] == '$' && rest[j+1] == 's' {
				n, _ := strconv.Atoi(rest[:j])
				if n >= 1 && n <= len(args) {
					b.WriteString(args[n-1])
				}
				i += j + 2
				continue
			}
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func abbreviate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
