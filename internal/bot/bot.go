package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"warden/internal/audit"
	"warden/internal/config"
	"warden/internal/executor"
	"warden/internal/pipeline"
	"warden/internal/rules"
	"warden/internal/storage"
)

const (
	colorAction = 0x5865f2
	colorWarn   = 0xfaa61a
)

// Bot is the Discord surface: it feeds message events into the pipeline,
// retracts deleted messages, serves the /guard admin commands, and mirrors
// audit entries to the guild's security log channel.
type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	pipeline *pipeline.Pipeline
	exec     *executor.Executor
	auditor  *audit.Logger
	session  *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, session *discordgo.Session, pipe *pipeline.Pipeline, exec *executor.Executor, auditor *audit.Logger) *Bot {
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pipeline: pipe,
		exec:     exec,
		auditor:  auditor,
		session:  session,
	}

	auditor.SetNotifier(b.notifyAudit)

	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	ev, ok := eventFromMessage(msg, time.Now())
	if !ok {
		return
	}
	b.pipeline.Submit(ev)
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.GuildID == "" {
		return
	}
	b.pipeline.Retract(event.ChannelID, event.ID)
}

// eventFromMessage turns a gateway message into an evaluation event. Bots,
// DMs, and messages with nothing to evaluate are skipped. Attachments and
// stickers contribute markers so media-only floods still fingerprint.
func eventFromMessage(msg *discordgo.MessageCreate, now time.Time) (rules.Event, bool) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return rules.Event{}, false
	}
	if msg.GuildID == "" {
		return rules.Event{}, false
	}

	content := msg.Content
	for range msg.Attachments {
		content += " [attachment]"
	}
	for range msg.StickerItems {
		content += " [sticker]"
	}
	if strings.TrimSpace(content) == "" {
		return rules.Event{}, false
	}

	ev := rules.Event{
		GuildID:    msg.GuildID,
		ChannelID:  msg.ChannelID,
		UserID:     msg.Author.ID,
		MessageID:  msg.ID,
		Content:    content,
		ReceivedAt: now,
	}
	if created, err := discordgo.SnowflakeTimestamp(msg.Author.ID); err == nil {
		ev.AccountCreated = created
	}
	if msg.Member != nil && !msg.Member.JoinedAt.IsZero() {
		ev.JoinedAt = msg.Member.JoinedAt
	}
	return ev, true
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:            guildID,
		SecurityLogChannel: b.cfg.SecurityLogChannel,
		Sensitivity:        b.cfg.Sensitivity,
		Mode:               b.cfg.Mode,
		BaseMuteMinutes:    b.cfg.Decision.BaseMuteMinutes,
		RetentionDays:      b.cfg.RetentionDays,
		RateEnabled:        b.cfg.Rules.Rate.Enabled,
		DuplicateEnabled:   b.cfg.Rules.Duplicate.Enabled,
		LinkEnabled:        b.cfg.Rules.Link.Enabled,
		AccountEnabled:     b.cfg.Rules.Account.Enabled,
	}

	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

// notifyAudit mirrors a persisted audit entry to the guild's security log
// channel. Best effort: a missing channel or send failure never affects the
// durable record.
func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditEntry) {
	settings := b.guildSettings(ctx, entry.GuildID)
	channelID := settings.SecurityLogChannel
	if channelID == "" {
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true},
		{Name: "Action", Value: entry.Action, Inline: true},
		{Name: "Outcome", Value: entry.Outcome, Inline: true},
	}
	if len(entry.Rules) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Rules", Value: strings.Join(entry.Rules, ", "), Inline: true,
		})
	}
	if entry.Confidence > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Confidence", Value: fmt.Sprintf("%.2f", entry.Confidence), Inline: true,
		})
	}
	if entry.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Duration", Value: entry.Duration.String(), Inline: true,
		})
	}
	if entry.ModeratorID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Moderator", Value: "<@" + entry.ModeratorID + ">", Inline: true,
		})
	}
	if entry.Detail != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Detail", Value: truncate(entry.Detail, 1024), Inline: false,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:     "Protection event",
		Color:     colorAction,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields:    fields,
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("security log notify failed",
			zap.String("guild_id", entry.GuildID),
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if embed == nil {
		b.respond(session, interaction, "No response available.")
		return
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
