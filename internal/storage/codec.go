package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
)

// EncodeTurns serializes a turn sequence into the msgs column format.
func EncodeTurns(turns []chat.Turn) ([]byte, error) {
	if turns == nil {
		turns = []chat.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("encode msgs: %w", err)
	}
	return data, nil
}

// DecodeTurns parses the msgs column. An empty column is an empty conversation.
func DecodeTurns(data []byte) ([]chat.Turn, error) {
	if len(data) == 0 || string(data) == "null" {
		return []chat.Turn{}, nil
	}
	var turns []chat.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode msgs: %w", err)
	}
	return turns, nil
}
