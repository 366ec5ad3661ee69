package command

import "strings"

// Format substitutes {field} placeholders in s. {{ and }} stand for
// literal braces.
func Format(s string, fields map[string]string) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(s[i+1:], "{}")
			if end < 0 || s[i+1+end] != '}' {
				return "", &SyntaxError{Template: s, Offset: i}
			}
			name := s[i+1 : i+1+end]
			v, ok := fields[name]
			if !ok {
				return "", &MissingFieldError{Field: name, Template: s}
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", &SyntaxError{Template: s, Offset: i}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
