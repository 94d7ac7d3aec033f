// Package translit converts Arabic-script text into the Latin chat alphabet
// ("arabizi") used as the lexicon's key space. Letters with no Latin
// equivalent map to the conventional digit substitutions (ع → 3, ء → 2, ح → 7)
// so that transcribed speech lines up with dataset keys such as "3aslema" and
// "mar2a".
package translit

import "strings"

// runeMap is the Arabic → Latin chat-alphabet table. Multi-letter outputs
// (sh, th, kh, gh) follow the common Tunisian transliteration convention.
var runeMap = map[rune]string{
	'ا': "a", 'أ': "2a", 'إ': "2i", 'آ': "2a", 'ء': "2", 'ؤ': "2", 'ئ': "2",
	'ب': "b", 'ت': "t", 'ث': "th", 'ج': "j", 'ح': "7", 'خ': "kh",
	'د': "d", 'ذ': "dh", 'ر': "r", 'ز': "z", 'س': "s", 'ش': "sh",
	'ص': "s", 'ض': "dh", 'ط': "t", 'ظ': "dh", 'ع': "3", 'غ': "gh",
	'ف': "f", 'ق': "9", 'ك': "k", 'ل': "l", 'م': "m", 'ن': "n",
	'ه': "h", 'ة': "a", 'و': "w", 'ي': "y", 'ى': "a",
	'٠': "0", '١': "1", '٢': "2", '٣': "3", '٤': "4",
	'٥': "5", '٦': "6", '٧': "7", '٨': "8", '٩': "9",
}

// diacritics are Arabic tashkil marks dropped during transliteration.
var diacritics = map[rune]struct{}{
	'ً': {}, 'ٌ': {}, 'ٍ': {}, 'َ': {},
	'ُ': {}, 'ِ': {}, 'ّ': {}, 'ْ': {},
	'ٰ': {},
}

// ToLatin transliterates Arabic-script runs in text to the Latin chat
// alphabet. Characters already in Latin script, digits, and whitespace pass
// through unchanged; diacritics are dropped; any other unmapped rune is
// replaced with a space so tokenization still splits cleanly.
//
// ToLatin is pure; applying it to pure-Latin input returns the input
// unchanged apart from the unmapped-rune substitution.
func ToLatin(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		if out, ok := runeMap[r]; ok {
			b.WriteString(out)
			continue
		}
		if _, ok := diacritics[r]; ok {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
