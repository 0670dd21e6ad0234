package router

import "strings"

// tokenize splits a control command's argument text on whitespace,
// except that an argument starting with `"` is read until the
// matching closing quote (spec.md §4.3: "supports the cron pattern").
func tokenize(s string) []string {
	var tokens []string
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		if s[i] == '"' {
			j := i + 1
			for j < n && s[j] != '"' {
				j++
			}
			if j < n {
				tokens = append(tokens, s[i+1:j])
				i = j + 1
				continue
			}
			// unterminated quote: take the rest as-is
			tokens = append(tokens, s[i+1:])
			i = n
			continue
		}
		j := i
		for j < n && !isSpace(s[j]) {
			j++
		}
		tokens = append(tokens, s[i:j])
		i = j
	}
	return tokens
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// parseCommand splits a raw command line into its name (without the
// prefix) and argument tokens.
func parseCommand(text string) (name string, args []string) {
	trimmed := strings.TrimLeft(text, " \t")
	trimmed = strings.TrimPrefix(trimmed, controlPrefix)
	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}
