package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"warden/internal/executor"
)

// API adapts the discordgo session to the executor's transport interface.
// The executor owns retry policy, so the session's built-in rate-limit retry
// is disabled and 429s surface here as retryable results with a wait hint.
type API struct {
	session *discordgo.Session
	logger  *zap.Logger
}

func NewAPI(session *discordgo.Session, logger *zap.Logger) *API {
	session.ShouldRetryOnRateLimit = false
	return &API{session: session, logger: logger}
}

func (a *API) DeleteMessage(ctx context.Context, channelID, messageID string) executor.CallResult {
	err := a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return classify(err)
}

func (a *API) MuteUser(ctx context.Context, guildID, userID string, duration time.Duration, reason string) executor.CallResult {
	until := time.Now().Add(duration)
	err := a.session.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return classify(err)
}

func (a *API) WarnUser(ctx context.Context, guildID, channelID, userID, reason string) executor.CallResult {
	embed := &discordgo.MessageEmbed{
		Title:       "Moderation warning",
		Description: fmt.Sprintf("<@%s> %s", userID, reason),
		Color:       colorWarn,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	_, err := a.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return classify(err)
}

// classify maps discordgo errors onto the executor's result taxonomy. Rate
// limits carry the server's retry-after as a wait hint; 5xx and transport
// trouble are retryable; any other API rejection (missing permissions,
// unknown message, validation) will not improve on retry.
func classify(err error) executor.CallResult {
	if err == nil {
		return executor.OK()
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return executor.Retryable(err, rateErr.RetryAfter)
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response != nil && restErr.Response.StatusCode >= 500 {
			return executor.Retryable(err, 0)
		}
		return executor.Fatal(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return executor.Retryable(err, 0)
	}

	// Anything else is transport-level (connection reset, DNS) and worth retrying.
	return executor.Retryable(err, 0)
}
