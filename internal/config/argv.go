package config

import (
	"fmt"
	"strings"
	"unicode"
)

// FilePlaceholder marks where prompt.player_cmd receives the prompt audio
// path. Without it the path is appended.
const FilePlaceholder = "{file}"

// ParsePlayerCommand splits a prompt player command line. Single and double
// quotes group words and a backslash escapes the next rune. A blank or
// commented-out line disables the external player.
func ParsePlayerCommand(raw string) (CommandConfig, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return CommandConfig{Raw: raw}, nil
	}

	argv, err := splitWords(line)
	if err != nil {
		return CommandConfig{}, err
	}
	if len(argv) > 0 && strings.Contains(argv[0], FilePlaceholder) {
		return CommandConfig{}, fmt.Errorf("player executable cannot be %s", FilePlaceholder)
	}
	placeholders := 0
	for _, arg := range argv[1:] {
		placeholders += strings.Count(arg, FilePlaceholder)
	}
	if placeholders > 1 {
		return CommandConfig{}, fmt.Errorf("%s may appear once, found %d", FilePlaceholder, placeholders)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func splitWords(line string) ([]string, error) {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		if escaped {
			word.WriteRune(r)
			escaped = false
			continue
		}
		if quote != 0 {
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
			continue
		}
		switch {
		case r == '\\':
			escaped, inWord = true, true
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", line)
	case quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", line)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}
