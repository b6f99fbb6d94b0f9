package memory

import "strings"

// ExtractedFact is a subject-predicate-object triple recovered from free
// text, with a confidence the pattern that produced it should carry.
type ExtractedFact struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// ExtractEntities scans text sentence by sentence for a small set of
// first-person self-disclosure patterns ("my name is ...", "I live in ...",
// "I moved from ... to ...", "my <X> is <Y>", ...) and returns the facts it
// recognizes. Matching is case-insensitive; extracted values keep the
// original casing of text.
func ExtractEntities(text string) []ExtractedFact {
	var facts []ExtractedFact
	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)

		switch {
		case indexAny(lower, "my name is ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "my name is ")+len("my name is ")); v != "" {
				facts = append(facts, fact("user", "name", v, 0.9))
			}
		case indexAny(lower, "i live in ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "i live in ")+len("i live in ")); v != "" {
				facts = append(facts, fact("user", "location", v, 0.85))
			}
		case indexAny(lower, "i'm from ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "i'm from ")+len("i'm from ")); v != "" {
				facts = append(facts, fact("user", "from", v, 0.85))
			}
		case indexAny(lower, "i am from ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "i am from ")+len("i am from ")); v != "" {
				facts = append(facts, fact("user", "from", v, 0.85))
			}
		case strings.Contains(lower, "i moved"):
			facts = append(facts, extractMovedPattern(sentence)...)
		case indexAny(lower, "i work at ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "i work at ")+len("i work at ")); v != "" {
				facts = append(facts, fact("user", "employer", v, 0.85))
			}
		case indexAny(lower, "i work for ") >= 0:
			if v := extractAfterPattern(sentence, indexAny(lower, "i work for ")+len("i work for ")); v != "" {
				facts = append(facts, fact("user", "employer", v, 0.85))
			}
		default:
			facts = append(facts, extractAllMyXIsY(sentence)...)
		}
	}
	return facts
}

func fact(subject, predicate, object string, confidence float64) ExtractedFact {
	return ExtractedFact{Subject: subject, Predicate: predicate, Object: object, Confidence: confidence}
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

func indexAny(s, sub string) int {
	return strings.Index(s, sub)
}

// extractAfterPattern takes everything in s from start onward, then trims it
// at the first clause boundary (',', ';', '(', ')') and surrounding
// whitespace.
func extractAfterPattern(s string, start int) string {
	if start < 0 || start > len(s) {
		return ""
	}
	return trimAtClauseBoundary(s[start:])
}

func trimAtClauseBoundary(s string) string {
	if i := strings.IndexAny(s, ",;()"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// extractMovedPattern handles both "I moved from X to Y" (emitting
// previous_location=X and location=Y) and the simpler "I moved to X"
// (emitting only location=X).
func extractMovedPattern(sentence string) []ExtractedFact {
	lower := strings.ToLower(sentence)

	if idx := strings.Index(lower, "i moved from "); idx >= 0 {
		rest := sentence[idx+len("i moved from "):]
		restLower := strings.ToLower(rest)
		if toIdx := strings.Index(restLower, " to "); toIdx >= 0 {
			prev := trimAtClauseBoundary(rest[:toIdx])
			loc := extractAfterPattern(rest, toIdx+len(" to "))
			var out []ExtractedFact
			if prev != "" {
				out = append(out, fact("user", "previous_location", prev, 0.85))
			}
			if loc != "" {
				out = append(out, fact("user", "location", loc, 0.85))
			}
			return out
		}
	}

	if idx := strings.Index(lower, "i moved to "); idx >= 0 {
		if v := extractAfterPattern(sentence, idx+len("i moved to ")); v != "" {
			return []ExtractedFact{fact("user", "location", v, 0.85)}
		}
	}

	return nil
}

// extractAllMyXIsY finds every "my <predicate> is <object>" occurrence in a
// sentence, splitting on " and " first so a compound sentence doesn't let
// one match's object swallow the next clause. The "name" predicate is
// skipped here since it is handled by the higher-confidence "my name is"
// pattern above.
func extractAllMyXIsY(sentence string) []ExtractedFact {
	var out []ExtractedFact
	for _, clause := range strings.Split(sentence, " and ") {
		lower := strings.ToLower(clause)
		searchFrom := 0
		for {
			rel := strings.Index(lower[searchFrom:], "my ")
			if rel < 0 {
				break
			}
			myIdx := searchFrom + rel
			afterMy := myIdx + len("my ")
			relIs := strings.Index(lower[afterMy:], " is ")
			if relIs < 0 {
				break
			}
			isIdx := afterMy + relIs

			pred := strings.TrimSpace(clause[afterMy:isIdx])
			predLower := strings.ToLower(pred)
			if pred != "" && predLower != "name" {
				predKey := strings.ReplaceAll(predLower, " ", "_")
				if obj := extractAfterPattern(clause, isIdx+len(" is ")); obj != "" {
					out = append(out, fact("user", predKey, obj, 0.75))
				}
			}
			searchFrom = isIdx + len(" is ")
		}
	}
	return out
}
