package common

import "strings"

type Language string

const (
	English  Language = "english"
	Hindi    Language = "hindi"
	Garhwali Language = "garhwali"
	Kumaoni  Language = "kumaoni"
)

var Languages = []Language{English, Hindi, Garhwali, Kumaoni}

// ParseLanguage is case-insensitive and falls back to English for
// anything it does not recognise.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case Hindi:
		return Hindi
	case Garhwali:
		return Garhwali
	case Kumaoni:
		return Kumaoni
	default:
		return English
	}
}

func (l Language) Valid() bool {
	for _, v := range Languages {
		if l == v {
			return true
		}
	}
	return false
}

// SpeechTag maps a language to the BCP-47 tag used for recognition and
// synthesis. Garhwali and Kumaoni have no dedicated voices, so they share
// the Hindi one.
func (l Language) SpeechTag() string {
	switch l {
	case Hindi, Garhwali, Kumaoni:
		return "hi-IN"
	default:
		return "en-IN"
	}
}

func (l Language) String() string { return string(l) }
