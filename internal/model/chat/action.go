package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ActionKind discriminates the special actions a tutor reply may carry.
type ActionKind int

const (
	// NoAction means the reply carries no directive.
	NoAction ActionKind = iota
	// ActionKind0 is the directive tagged with id 0.
	ActionKind0
	// ActionKind1 is the directive tagged with id 1.
	ActionKind1
)

// SpecialAction is the decoded directive of a tutor reply. Both tagged kinds
// currently name a simulation to offer and are handled the same way.
type SpecialAction struct {
	Kind ActionKind
	Data string
}

// Present reports whether the action names something to attach to a turn.
func (a SpecialAction) Present() bool {
	return a.Kind != NoAction && a.Data != ""
}

var (
	errActionNotObject = errors.New("special action is not an object")
	errActionMissingID = errors.New("special action has no id")

	actionNoise = regexp.MustCompile("(?i)json|`|\n")
)

type actionPayload struct {
	ID   *int            `json:"id"`
	Data json.RawMessage `json:"data"`
}

// DecodeSpecialAction parses the raw special_action field of a tutor reply.
//
// The payload is either a "null" sentinel (in any case, possibly fenced) or a
// quasi-JSON object using single quotes. Anything that cannot be decoded yields
// NoAction; a non-nil error is returned alongside for malformed payloads so the
// caller can log it.
func DecodeSpecialAction(raw string) (SpecialAction, error) {
	cleaned := strings.TrimSpace(actionNoise.ReplaceAllString(raw, ""))
	if cleaned == "" || strings.Contains(strings.ToLower(cleaned), "null") {
		return SpecialAction{Kind: NoAction}, nil
	}

	normalized := strings.ReplaceAll(cleaned, "'", "\"")
	if !strings.HasPrefix(normalized, "{") {
		return SpecialAction{Kind: NoAction}, errActionNotObject
	}

	var payload actionPayload
	if err := json.Unmarshal([]byte(normalized), &payload); err != nil {
		return SpecialAction{Kind: NoAction}, fmt.Errorf("decode special action: %w", err)
	}
	if payload.ID == nil {
		return SpecialAction{Kind: NoAction}, errActionMissingID
	}

	var data string
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &data); err != nil {
			return SpecialAction{Kind: NoAction}, fmt.Errorf("decode special action data: %w", err)
		}
	}
	data = strings.TrimSpace(data)

	var kind ActionKind
	switch *payload.ID {
	case 0:
		kind = ActionKind0
	case 1:
		kind = ActionKind1
	default:
		return SpecialAction{Kind: NoAction}, nil
	}
	if data == "" {
		return SpecialAction{Kind: NoAction}, nil
	}

	return SpecialAction{Kind: kind, Data: data}, nil
}
