package classify

import (
	"strings"
	"unicode"
)

type Category string

const (
	CategoryData     Category = "data"
	CategoryFollowUp Category = "follow_up"
	CategoryMeta     Category = "meta"
	CategoryGreeting Category = "greeting"
	CategoryIdentity Category = "identity"
)

const maxReferentWords = 3

type Classification struct {
	Category Category
	// Marker is the lexicon entry that decided the category.
	Marker string
	// Referent holds the content words following a demonstrative ("that product type" -> product, type).
	Referent []string
}

type Classifier struct {
	lexicon        Lexicon
	followUp       []string
	demonstratives map[string]struct{}
	meta           []string
	greetings      []string
	identity       []string
	stopWords      map[string]struct{}
	genericHeads   map[string]struct{}
}

func New(lexicon Lexicon) *Classifier {
	lexicon = lexicon.WithDefaults()
	return &Classifier{
		lexicon:        lexicon,
		followUp:       normalizeAll(lexicon.FollowUpMarkers),
		demonstratives: toSet(lexicon.Demonstratives),
		meta:           normalizeAll(lexicon.MetaMarkers),
		greetings:      normalizeAll(lexicon.Greetings),
		identity:       normalizeAll(lexicon.IdentityMarkers),
		stopWords:      toSet(lexicon.StopWords),
		genericHeads:   toSet(lexicon.GenericHeads),
	}
}

func (c *Classifier) Lexicon() Lexicon {
	return c.lexicon
}

// Classify checks meta markers first, then follow-up markers and demonstratives, then small talk.
// Anything else is a data question.
func (c *Classifier) Classify(question string) Classification {
	tokens := Normalize(question)
	if len(tokens) == 0 {
		return Classification{Category: CategoryData}
	}
	padded := " " + strings.Join(tokens, " ") + " "

	if marker, ok := firstContained(padded, c.meta); ok {
		return Classification{Category: CategoryMeta, Marker: marker}
	}

	if marker, referent, ok := c.demonstrative(tokens); ok {
		return Classification{Category: CategoryFollowUp, Marker: marker, Referent: referent}
	}
	if marker, ok := firstContained(padded, c.followUp); ok {
		return Classification{Category: CategoryFollowUp, Marker: marker}
	}

	if len(tokens) <= c.lexicon.MaxSmallTalkWords {
		if marker, ok := firstContained(padded, c.identity); ok {
			return Classification{Category: CategoryIdentity, Marker: marker}
		}
		if marker, ok := firstContained(padded, c.greetings); ok {
			return Classification{Category: CategoryGreeting, Marker: marker}
		}
	}
	return Classification{Category: CategoryData}
}

// IsFollowUp reports whether the question references earlier conversation.
func (c *Classifier) IsFollowUp(question string) bool {
	return c.Classify(question).Category == CategoryFollowUp
}

// Canned returns the fixed insight for a greeting or identity classification.
func (c *Classifier) Canned(cls Classification) (CannedInsight, bool) {
	if cls.Category != CategoryGreeting && cls.Category != CategoryIdentity {
		return CannedInsight{}, false
	}
	var fallback *CannedInsight
	for i := range c.lexicon.Canned {
		entry := &c.lexicon.Canned[i]
		if entry.Category != cls.Category {
			continue
		}
		if len(entry.Markers) == 0 {
			if fallback == nil {
				fallback = entry
			}
			continue
		}
		for _, marker := range normalizeAll(entry.Markers) {
			if marker == cls.Marker {
				return *entry, true
			}
		}
	}
	if fallback == nil {
		return CannedInsight{}, false
	}
	return *fallback, true
}

// demonstrative finds the first demonstrative anywhere in the question. The referent is the run of
// content words after it, without generic heads: "compare that product type" -> product, type and
// "that one" -> none.
func (c *Classifier) demonstrative(tokens []string) (string, []string, bool) {
	for i, token := range tokens {
		if _, ok := c.demonstratives[token]; !ok {
			continue
		}
		var referent []string
		for _, next := range tokens[i+1:] {
			if _, stop := c.stopWords[next]; stop {
				break
			}
			if _, demo := c.demonstratives[next]; demo {
				break
			}
			if _, generic := c.genericHeads[next]; generic {
				continue
			}
			referent = append(referent, next)
			if len(referent) == maxReferentWords {
				break
			}
		}
		return token, referent, true
	}
	return "", nil, false
}

// Normalize lower-cases text and splits it into letter/digit words.
func Normalize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsWord reports whether the word-normalized haystack contains needle as a whole word sequence.
func ContainsWord(haystack, needle string) bool {
	n := strings.Join(Normalize(needle), " ")
	if n == "" {
		return false
	}
	return strings.Contains(" "+strings.Join(Normalize(haystack), " ")+" ", " "+n+" ")
}

func firstContained(padded string, markers []string) (string, bool) {
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(padded, " "+marker+" ") {
			return marker, true
		}
	}
	return "", false
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if normalized := strings.Join(Normalize(value), " "); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, value := range normalizeAll(values) {
		out[value] = struct{}{}
	}
	return out
}
