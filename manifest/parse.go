package manifest

import (
	"bufio"
	"io"
	"strings"

	"github.com/teranos/wptmeta/errors"
)

type line struct {
	no     int
	indent int
	text   string
}

type frame struct {
	section *Section
	indent  int
}

// Parse reads a manifest. Errors are marked with errors.ErrInvalidManifest
// and carry the offending line number.
func Parse(r io.Reader) (*Section, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	root := &Section{}
	stack := []frame{{section: root, indent: -1}}

	for i := 0; i < len(lines); {
		ln := lines[i]
		for len(stack) > 1 && stack[len(stack)-1].indent >= ln.indent {
			stack = stack[:len(stack)-1]
		}
		cur := stack[len(stack)-1].section

		if strings.HasPrefix(ln.text, "[") {
			name, err := parseHeading(ln.text)
			if err != nil {
				return nil, lineError(ln, err)
			}
			if cur.Child(name) != nil {
				return nil, lineError(ln, errors.Newf("duplicate section [%s]", name))
			}
			child := &Section{Name: name}
			cur.AddChild(child)
			stack = append(stack, frame{section: child, indent: ln.indent})
			i++
			continue
		}

		key, rest, err := splitKey(ln.text)
		if err != nil {
			return nil, lineError(ln, err)
		}

		if strings.TrimSpace(rest) != "" {
			v, err := parseValue(rest)
			if err != nil {
				return nil, lineError(ln, err)
			}
			cur.SetDefault(key, v)
			i++
			continue
		}

		j := i + 1
		var values []*ConditionalValue
		for ; j < len(lines) && lines[j].indent > ln.indent; j++ {
			cl := lines[j]
			if n := len(values); n > 0 && values[n-1].IsDefault() {
				return nil, lineError(cl, errors.Newf("value after the default of %q", key))
			}
			cv, err := parseConditionalLine(cl.text)
			if err != nil {
				return nil, lineError(cl, err)
			}
			values = append(values, cv)
		}
		if len(values) == 0 {
			values = []*ConditionalValue{{Value: String("")}}
		}
		cur.Set(key, values)
		i = j
	}
	return root, nil
}

// ParseString parses manifest text held in memory
func ParseString(s string) (*Section, error) {
	return Parse(strings.NewReader(s))
}

func readLines(r io.Reader) ([]line, error) {
	var lines []line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	no := 0
	for scanner.Scan() {
		no++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimLeft(raw, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "\t") {
			return nil, errors.NewInvalidManifestError("line %d: tab in indentation", no)
		}
		lines = append(lines, line{no: no, indent: len(raw) - len(trimmed), text: trimmed})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	return lines, nil
}

func lineError(ln line, err error) error {
	return errors.Mark(errors.Wrapf(err, "line %d", ln.no), errors.ErrInvalidManifest)
}

func parseHeading(text string) (string, error) {
	var b strings.Builder
	for i := 1; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text):
			i++
			b.WriteByte(text[i])
		case c == ']':
			if tail := strings.TrimSpace(text[i+1:]); tail != "" && !strings.HasPrefix(tail, "#") {
				return "", errors.Newf("unexpected %q after section heading", tail)
			}
			if b.Len() == 0 {
				return "", errors.New("empty section name")
			}
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", errors.New("unterminated section heading")
}

func splitKey(text string) (string, string, error) {
	idx := strings.IndexByte(text, ':')
	if idx < 0 {
		return "", "", errors.Newf("expected key: value, got %q", text)
	}
	key := strings.TrimSpace(text[:idx])
	if key == "" {
		return "", "", errors.New("empty key")
	}
	if strings.ContainsAny(key, " \t\"'") {
		return "", "", errors.Newf("invalid key %q", key)
	}
	return key, text[idx+1:], nil
}

func parseConditionalLine(text string) (*ConditionalValue, error) {
	if strings.HasPrefix(text, "if ") {
		cond, rest, err := parseCondition(text[3:])
		if err != nil {
			return nil, err
		}
		v, err := parseValue(rest)
		if err != nil {
			return nil, err
		}
		return &ConditionalValue{Cond: cond, Value: v}, nil
	}
	v, err := parseValue(text)
	if err != nil {
		return nil, err
	}
	return &ConditionalValue{Value: v}, nil
}

func parseValue(text string) (Value, error) {
	s := strings.TrimSpace(text)
	switch {
	case s == "":
		return String(""), nil
	case s[0] == '[':
		return parseList(s)
	case s[0] == '"' || s[0] == '\'':
		v, end, err := unquote(s, 0)
		if err != nil {
			return Value{}, err
		}
		if end != len(s) {
			return Value{}, errors.Newf("unexpected %q after string", s[end:])
		}
		return String(v), nil
	}
	return String(s), nil
}

func parseList(s string) (Value, error) {
	if !strings.HasSuffix(s, "]") {
		return Value{}, errors.New("unterminated list")
	}
	inner := s[1 : len(s)-1]
	items := []string{}
	if strings.TrimSpace(inner) == "" {
		return List(items...), nil
	}

	var cur strings.Builder
	quoted := false
	flush := func() {
		item := cur.String()
		if !quoted {
			item = strings.TrimSpace(item)
		}
		items = append(items, item)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == ',':
			flush()
		case (c == '"' || c == '\'') && strings.TrimSpace(cur.String()) == "":
			v, end, err := unquote(inner, i)
			if err != nil {
				return Value{}, err
			}
			cur.Reset()
			cur.WriteString(v)
			quoted = true
			for end < len(inner) && inner[end] == ' ' {
				end++
			}
			if end < len(inner) && inner[end] != ',' {
				return Value{}, errors.Newf("unexpected %q in list", inner[end:])
			}
			i = end - 1
		case c == ']' || c == '[':
			return Value{}, errors.Newf("unexpected %q in list", c)
		default:
			cur.WriteByte(c)
		}
	}
	if quoted || strings.TrimSpace(cur.String()) != "" {
		flush()
	}
	return List(items...), nil
}
