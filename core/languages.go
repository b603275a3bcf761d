package orchestration

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is one language offered by the synthesis engine, aggregated
// across its voices.
type Language struct {
	// Tag is the BCP 47 tag as the engine reports it.
	Tag   string
	Label string
	// VoiceCount is the number of voices speaking this language.
	VoiceCount int
}

// Languages aggregates the synthesis engine's voices by language. Labels
// are English display names; tags the engine reports that do not parse keep
// the raw tag as their label.
func (o *Orchestrator) Languages(ctx context.Context) ([]Language, error) {
	voices, err := o.Voices(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, v := range voices {
		tag := strings.TrimSpace(v.LanguageTag)
		if tag == "" {
			continue
		}
		counts[tag]++
	}

	languages := make([]Language, 0, len(counts))
	for tag, count := range counts {
		languages = append(languages, Language{
			Tag:        tag,
			Label:      languageLabel(tag),
			VoiceCount: count,
		})
	}
	slices.SortFunc(languages, func(a, b Language) int {
		if c := strings.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return strings.Compare(a.Tag, b.Tag)
	})
	return languages, nil
}

func languageLabel(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if label := display.English.Tags().Name(parsed); label != "" {
		return label
	}
	return tag
}
