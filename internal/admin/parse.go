package admin

import "strings"

// tokenize splits command text into tokens while supporting quotes.
// Example:
//
//	!config set <#123> msg "hello there"
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ = true
			qChar = ch
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// stripMention reduces Discord mention syntax to a bare snowflake:
// <@123>, <@!123>, <@&123>, <#123> all become "123". Plain IDs pass through.
func stripMention(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '@', '&', '#', '!':
			return -1
		}
		return r
	}, s)
}

// splitButtonFlag extracts the `--btn [channel]` option from a dmall message
// tail. Returns the remaining text, the channel argument (may be empty) and
// whether the flag was present.
func splitButtonFlag(text string) (rest, channelArg string, ok bool) {
	i := strings.Index(text, "--btn")
	if i < 0 {
		return text, "", false
	}
	rest = strings.TrimSpace(text[:i])
	after := strings.TrimSpace(text[i+len("--btn"):])
	if after != "" {
		channelArg = stripMention(strings.Fields(after)[0])
	}
	return rest, channelArg, true
}
