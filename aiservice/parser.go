package aiservice

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	maxFrontTextLen = 200
	maxBackTextLen  = 500
)

// ParsedFlashcard is one validated item from a provider response.
type ParsedFlashcard struct {
	FrontText  string `json:"front_text"`
	BackText   string `json:"back_text"`
	Difficulty string `json:"difficulty"`
	Category   string `json:"category"`
}

// ParseFlashcardPayload extracts and validates the flashcards array from a
// raw provider response. The model is asked for JSON but often wraps it in
// prose or a markdown fence, so the first JSON value is located by bracket
// depth counting. A bare array is treated as {"flashcards": [...]}.
//
// Every failure here is a VALIDATION_ERROR: malformed output is not a
// transient condition and must never be retried.
func ParseFlashcardPayload(raw string) ([]ParsedFlashcard, error) {
	fragment, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(fragment, "[") {
		fragment = `{"flashcards":` + fragment + `}`
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(fragment), &top); err != nil {
		return nil, newError(KindValidation, false, "response is not valid JSON: %v", err)
	}
	rawCards, ok := top["flashcards"]
	if !ok {
		return nil, newError(KindValidation, false, "response has no flashcards property")
	}
	for key := range top {
		if key != "flashcards" {
			return nil, newError(KindValidation, false, "unexpected property %q in response", key)
		}
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawCards, &items); err != nil {
		return nil, newError(KindValidation, false, "flashcards is not an array of objects: %v", err)
	}
	if len(items) == 0 {
		return nil, newError(KindValidation, false, "flashcards array is empty")
	}

	cards := make([]ParsedFlashcard, 0, len(items))
	for i, item := range items {
		card, err := validateCard(i, item)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

var requiredCardFields = []string{"front_text", "back_text", "difficulty", "category"}

func validateCard(index int, item map[string]json.RawMessage) (ParsedFlashcard, error) {
	for _, field := range requiredCardFields {
		if _, ok := item[field]; !ok {
			return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d missing required field %s", index, field)
		}
	}
	for key := range item {
		known := false
		for _, field := range requiredCardFields {
			if key == field {
				known = true
				break
			}
		}
		if !known {
			return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d has unexpected field %q", index, key)
		}
	}

	var card ParsedFlashcard
	buf, _ := json.Marshal(item)
	if err := json.Unmarshal(buf, &card); err != nil {
		return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d has invalid field types: %v", index, err)
	}
	// Length limits count runes, matching what the model is told and the
	// character limits of the card columns.
	if card.FrontText == "" || utf8.RuneCountInString(card.FrontText) > maxFrontTextLen {
		return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d front_text length must be 1..%d", index, maxFrontTextLen)
	}
	if card.BackText == "" || utf8.RuneCountInString(card.BackText) > maxBackTextLen {
		return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d back_text length must be 1..%d", index, maxBackTextLen)
	}
	switch card.Difficulty {
	case "easy", "medium", "hard":
	default:
		return ParsedFlashcard{}, newError(KindValidation, false, "flashcard %d difficulty %q is not easy|medium|hard", index, card.Difficulty)
	}
	return card, nil
}

// extractJSON strips markdown fences and returns the first balanced JSON
// object or array in the text, tolerating surrounding prose.
func extractJSON(raw string) (string, error) {
	text := stripCodeFences(raw)

	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", newError(KindValidation, false, "no JSON object or array found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", newError(KindValidation, false, "unbalanced brackets in response")
}

func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	idx := strings.Index(text, "```")
	if idx < 0 {
		return text
	}
	rest := text[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the fence line itself ("```json" etc).
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
