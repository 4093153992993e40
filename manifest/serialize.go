package manifest

import (
	"strings"
)

const indentWidth = 2

// Serialize renders a manifest. Properties without values and sections
// holding no data are skipped.
func Serialize(root *Section) string {
	var b strings.Builder
	writeBody(&b, root, 0)
	return b.String()
}

func writeBody(b *strings.Builder, s *Section, depth int) {
	for _, kv := range s.Entries {
		writeKeyValue(b, kv, depth)
	}
	for _, child := range s.Children {
		if child.IsEmpty() {
			continue
		}
		writeIndent(b, depth)
		b.WriteByte('[')
		b.WriteString(escapeHeading(child.Name))
		b.WriteString("]\n")
		writeBody(b, child, depth+1)
	}
}

func writeKeyValue(b *strings.Builder, kv *KeyValue, depth int) {
	if len(kv.Values) == 0 {
		return
	}
	writeIndent(b, depth)
	b.WriteString(kv.Key)
	b.WriteByte(':')
	if len(kv.Values) == 1 && kv.Values[0].IsDefault() {
		b.WriteByte(' ')
		b.WriteString(formatValue(kv.Values[0].Value))
		b.WriteByte('\n')
		return
	}
	b.WriteByte('\n')
	for _, cv := range kv.Values {
		writeIndent(b, depth+1)
		if cv.Cond != nil {
			b.WriteString("if ")
			b.WriteString(cv.Cond.String())
			b.WriteString(": ")
		}
		b.WriteString(formatValue(cv.Value))
		b.WriteByte('\n')
	}
}

func writeIndent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat(" ", depth*indentWidth))
}

func escapeHeading(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `]`, `\]`)
	return r.Replace(name)
}

func formatValue(v Value) string {
	if !v.IsList {
		return formatScalar(v.Text, false)
	}
	items := make([]string, len(v.List))
	for i, item := range v.List {
		items[i] = formatScalar(item, true)
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func formatScalar(s string, inList bool) string {
	if needsQuote(s, inList) {
		return quoteString(s)
	}
	return s
}

func needsQuote(s string, inList bool) bool {
	if s == "" {
		return true
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	switch s[0] {
	case '"', '\'', '[', '#':
		return true
	}
	if strings.HasPrefix(s, "if ") || strings.ContainsAny(s, "\n\t\\") {
		return true
	}
	return inList && strings.ContainsAny(s, ",]")
}
