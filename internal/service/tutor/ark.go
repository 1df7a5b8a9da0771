package tutor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/config"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
)

// ArkClient answers as the tutor with a chat model behind an eino chain. The
// same chain serves both calls; only the system prompt differs.
type ArkClient struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string
	logger *zap.Logger
}

var _ Client = (*ArkClient)(nil)

// NewArkClient builds the Ark chat model from cfg and compiles the chain.
func NewArkClient(ctx context.Context, cfg config.AIConfig, catalog simulation.Catalog, logger *zap.Logger) (*ArkClient, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewModelClient(ctx, chatModel, catalog, logger)
}

// NewModelClient wires an existing chat model.
func NewModelClient(ctx context.Context, chatModel model.ChatModel, catalog simulation.Catalog, logger *zap.Logger) (*ArkClient, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	chain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tutor chain: %w", err)
	}

	return &ArkClient{
		chain:  chain,
		system: buildTutorSystemPrompt(catalog.List()),
		logger: logger.Named("tutor"),
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

func (c *ArkClient) Ask(ctx context.Context, options map[string]any, latestMessage, conversationContext string) (AskResult, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": c.system,
		"query":  buildAskQuery(options, latestMessage, conversationContext),
	})
	if err != nil {
		return AskResult{}, fmt.Errorf("failed to run tutor chain: %w", err)
	}
	if msg == nil {
		return AskResult{Code: http.StatusBadGateway}, nil
	}

	reply, action := splitSpecialAction(msg.Content)
	c.logger.Debug("tutor replied", zap.Int("length", len(reply)), zap.String("special_action", action))
	return AskResult{Code: StatusOK, Response: reply, SpecialAction: action}, nil
}

func (c *ArkClient) RequestTitle(ctx context.Context, conversationContext string) (TitleResult, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": titlePrompt,
		"query":  conversationContext,
	})
	if err != nil {
		return TitleResult{}, fmt.Errorf("failed to run title chain: %w", err)
	}
	if msg == nil {
		return TitleResult{Code: http.StatusBadGateway}, nil
	}

	title := cleanTitle(msg.Content)
	if title == "" {
		return TitleResult{Code: http.StatusBadGateway}, nil
	}
	return TitleResult{Code: StatusOK, Response: title}, nil
}
