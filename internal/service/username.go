package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BuildUsername derives the login name from the first letter of the first
// name, the last name and the last four characters of the document:
// ("Juan", "Sánchez", "12345678") -> "jsanchez5678".
func BuildUsername(firstName, lastName, document string) (string, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	document = strings.TrimSpace(document)
	if firstName == "" || lastName == "" || utf8.RuneCountInString(document) < 4 {
		return "", ErrUsernameInput
	}

	first, _ := utf8.DecodeRuneInString(firstName)
	docRunes := []rune(document)
	raw := strings.ToLower(string(first) + lastName + string(docRunes[len(docRunes)-4:]))

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(stripMarks, raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", ErrUsernameInput
	}
	return b.String(), nil
}
