package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	pronounPattern = regexp.MustCompile(`\bi(?:['’](?:m|d|ll|ve|re|s))?\b`)

	// abbreviations that do not end a sentence.
	abbreviations = map[string]struct{}{
		"e.g": {}, "i.e": {}, "etc": {}, "vs": {}, "mr": {}, "mrs": {}, "ms": {}, "dr": {},
	}
)

func capitalize(text string) string {
	words := strings.Split(text, " ")
	start := true
	for i, word := range words {
		if start {
			words[i] = upperFirstLetter(word)
		}
		start = endsSentence(word)
	}
	text = strings.Join(words, " ")

	return pronounPattern.ReplaceAllStringFunc(text, func(match string) string {
		return "I" + match[1:]
	})
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]”’`)
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '!', '?':
		return true
	case '.':
		_, known := abbreviations[strings.ToLower(strings.TrimSuffix(trimmed, "."))]
		return !known
	}
	return false
}

func upperFirstLetter(word string) string {
	for i, r := range word {
		if unicode.IsLetter(r) {
			return word[:i] + string(unicode.ToUpper(r)) + word[i+utf8.RuneLen(r):]
		}
		if unicode.IsDigit(r) {
			return word
		}
	}
	return word
}
