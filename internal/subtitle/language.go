package subtitle

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the most common language across cue texts.
func DetectLanguage(cues []Cue) language.Tag {
	if len(cues) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, cue := range cues {
		code := whatlanggo.DetectLang(cue.Text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}
