// Package tutor talks to the remote tutor: one call answers a learner, the
// other names a conversation.
package tutor

import (
	"context"
	"net/http"
)

// StatusOK is the code of a usable tutor result.
const StatusOK = http.StatusOK

// AskResult is the reply of the ask endpoint. SpecialAction is the raw,
// undecoded directive ("null" or a single-quoted object).
type AskResult struct {
	Code          int    `json:"code"`
	Response      string `json:"response"`
	SpecialAction string `json:"special_action"`
}

// TitleResult is the reply of the title endpoint.
type TitleResult struct {
	Code     int    `json:"code"`
	Response string `json:"response"`
}

// Client is the tutor API. Calls are single attempts; a non-200 Code is a
// result, not an error. Errors mean the call itself failed.
type Client interface {
	Ask(ctx context.Context, options map[string]any, latestMessage, conversationContext string) (AskResult, error)
	RequestTitle(ctx context.Context, conversationContext string) (TitleResult, error)
}
