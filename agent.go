package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coinpulse/pkg/logging"
)

// replyError carries a message that is shown to the invoker verbatim.
type replyError string

func (e replyError) Error() string { return string(e) }

const (
	errSentimentFailed replyError = "Sentiment processing failed."
	errMarketFailed    replyError = "Market data unavailable."
)

// sentimentService is the part of the pipeline the agent dispatches to.
type sentimentService interface {
	Run(ctx context.Context, workspaceID string) (string, error)
	Market(ctx context.Context, asset string) (string, error)
}

// SentimentAgent handles capability invocations from the Teneo network.
type SentimentAgent struct {
	service            sentimentService
	capability         string
	defaultWorkspaceID string
	commands           string
}

// NewSentimentAgent accepts capability as an alias of the sentiment command.
func NewSentimentAgent(service sentimentService, capability, defaultWorkspaceID string) *SentimentAgent {
	return &SentimentAgent{
		service:            service,
		capability:         capability,
		defaultWorkspaceID: defaultWorkspaceID,
		commands:           fmt.Sprintf("sentiment [workspaceId], %s [workspaceId], price [token], market [token], help", capability),
	}
}

func (a *SentimentAgent) ProcessTask(ctx context.Context, task string) (string, error) {
	ctx, _ = logging.EnsureID(ctx)
	slog.InfoContext(ctx, "Processing task", "task", task)

	task = strings.TrimSpace(task)
	task = strings.TrimPrefix(task, "/")
	parts := strings.Fields(task)
	if len(parts) == 0 {
		return "Available commands: " + a.commands, nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	if cmd == a.capability {
		cmd = "sentiment"
	}

	switch cmd {
	case "sentiment":
		ws := a.defaultWorkspaceID
		if len(args) > 0 {
			ws = args[0]
		}
		out, err := a.service.Run(ctx, ws)
		if err != nil {
			slog.ErrorContext(ctx, "Sentiment task failed", "workspace_id", ws, "error", err)
			return "", errSentimentFailed
		}
		return out, nil
	case "price", "market":
		out, err := a.service.Market(ctx, strings.Join(args, ""))
		if err != nil {
			slog.ErrorContext(ctx, "Market task failed", "error", err)
			return "", errMarketFailed
		}
		return out, nil
	case "help":
		return "Available commands: " + a.commands, nil
	default:
		return fmt.Sprintf("Unknown command '%s'. Available commands: %s", cmd, a.commands), nil
	}
}
