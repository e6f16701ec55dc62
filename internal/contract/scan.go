package contract

// objects returns the outermost balanced {...} spans of s, in order of
// appearance, in one pass. Braces inside JSON strings are ignored. Text outside
// objects is opaque prose, so quotes there do not start a string. Inside an
// object that never closes, its balanced children are returned instead.
func objects(s string) []string {
	type span struct{ start, end int }

	var (
		open     []int  // positions of unclosed braces
		spans    []span // closed spans not nested in another closed span
		inString bool
		escaped  bool
	)
	for j := 0; j < len(s); j++ {
		c := s[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(open) > 0
		case '{':
			open = append(open, j)
		case '}':
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			// A closed span supersedes the children recorded inside it.
			for len(spans) > 0 && spans[len(spans)-1].start > start {
				spans = spans[:len(spans)-1]
			}
			spans = append(spans, span{start, j})
		}
	}

	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end+1])
	}
	return out
}
