package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"danceimport/internal/model"
)

var (
	// ErrMalformedPayload means no parseable JSON could be found.
	ErrMalformedPayload = errors.New("payload is not valid JSON")
	// ErrUnrecognizedShape means the JSON parsed but held no event list.
	ErrUnrecognizedShape = errors.New("payload has no recognizable event list")
)

// fencePattern strips a markdown code fence around the whole payload.
var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?\\s*```$")

// DecodeDayRangeRecords reads the JSON returned by the AI collaborator. It
// accepts a bare array, an {"events": [...]} envelope, or one bare event
// object, optionally wrapped in a markdown fence or surrounded by prose.
// Any other input fails the whole batch.
func DecodeDayRangeRecords(payload string) ([]model.DayRangeRecord, error) {
	body, err := extractJSON(payload)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	raw = bytes.TrimSpace(raw)

	switch raw[0] {
	case '[':
		return decodeList(raw)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if events, ok := obj["events"]; ok && isArray(events) {
			return decodeList(events)
		}
		if title, ok := obj["title"]; ok && isNonEmptyString(title) {
			var rec model.DayRangeRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			return []model.DayRangeRecord{rec}, nil
		}
	}
	return nil, ErrUnrecognizedShape
}

func decodeList(raw json.RawMessage) ([]model.DayRangeRecord, error) {
	var recs []model.DayRangeRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if recs == nil {
		recs = []model.DayRangeRecord{}
	}
	return recs, nil
}

// extractJSON returns the fenced body if the payload is fenced, otherwise
// the span from the first '[' or '{' to the last ']' or '}'.
func extractJSON(payload string) ([]byte, error) {
	text := strings.TrimSpace(payload)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return []byte(strings.TrimSpace(m[1])), nil
	}

	start := strings.IndexAny(text, "[{")
	end := strings.LastIndexAny(text, "]}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object or array found", ErrMalformedPayload)
	}
	return []byte(text[start : end+1]), nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isNonEmptyString(raw json.RawMessage) bool {
	var s string
	return json.Unmarshal(raw, &s) == nil && s != ""
}
