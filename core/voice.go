package core

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Voice is one entry of the fixed speech voice catalog.
type Voice struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Accent string       `json:"accent"`
	Gender string       `json:"gender"`
	Locale language.Tag `json:"-"`
}

// Label is the selector caption, e.g. "Terrell (US Male)".
func (v Voice) Label() string {
	return fmt.Sprintf("%s (%s %s)", v.Name, v.Accent, v.Gender)
}

// LanguageName is the English name of the voice locale, e.g. "American English".
func (v Voice) LanguageName() string {
	return display.English.Tags().Name(v.Locale)
}

const DefaultVoiceID = "en-US-terrell"

var voiceCatalog = []Voice{
	{ID: "en-US-terrell", Name: "Terrell", Accent: "US", Gender: "Male", Locale: language.AmericanEnglish},
	{ID: "en-US-natalie", Name: "Natalie", Accent: "US", Gender: "Female", Locale: language.AmericanEnglish},
	{ID: "en-US-ariana", Name: "Ariana", Accent: "US", Gender: "Female", Locale: language.AmericanEnglish},
	{ID: "en-UK-ruby", Name: "Ruby", Accent: "UK", Gender: "Female", Locale: language.BritishEnglish},
	{ID: "fr-FR-axel", Name: "Axel", Accent: "FR", Gender: "Male", Locale: language.French},
}

// Voices returns the catalog in display order.
func Voices() []Voice {
	out := make([]Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}

// LookupVoice finds a catalog voice by identifier.
func LookupVoice(id string) (Voice, bool) {
	for _, v := range voiceCatalog {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// ValidateVoice returns an error wrapping ErrInvalidVoice for ids outside the catalog.
func ValidateVoice(id string) error {
	if _, ok := LookupVoice(id); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidVoice, id)
	}
	return nil
}
