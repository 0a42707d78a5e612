package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"warden/internal/config"
	"warden/internal/executor"
	"warden/internal/storage"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := interaction.ApplicationCommandData()
	if data.Name != "guard" {
		return
	}
	if interaction.GuildID == "" {
		b.respond(session, interaction, "This command only works inside a guild.")
		return
	}
	if !canManage(interaction) {
		b.respond(session, interaction, "You need the Manage Server permission for this.")
		return
	}
	if len(data.Options) == 0 {
		b.respond(session, interaction, "Missing subcommand.")
		return
	}

	ctx := context.Background()
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "status":
		b.handleStatus(ctx, session, interaction)
	case "sensitivity":
		b.handleSensitivity(ctx, session, interaction, opts)
	case "mode":
		b.handleMode(ctx, session, interaction, opts)
	case "mute-duration":
		b.handleMuteDuration(ctx, session, interaction, opts)
	case "rule":
		b.handleRule(ctx, session, interaction, opts)
	case "domain":
		b.handleDomain(ctx, session, interaction, opts)
	case "log":
		b.handleLog(ctx, session, interaction, opts)
	case "log-channel":
		b.handleLogChannel(ctx, session, interaction, opts)
	default:
		b.respond(session, interaction, "Unknown subcommand.")
	}
}

func canManage(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member == nil {
		return false
	}
	return interaction.Member.Permissions&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}

func moderatorID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	return ""
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (b *Bot) handleStatus(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	pol := b.pipeline.Policy(ctx, interaction.GuildID)

	ruleLines := []string{
		"rate: " + onOff(pol.Rate.Enabled),
		"duplicate: " + onOff(pol.Duplicate.Enabled),
		"link: " + onOff(pol.Link.Enabled),
		"account: " + onOff(pol.Account.Enabled),
	}

	stats := b.exec.BreakerStats()
	routes := make([]string, 0, len(stats))
	for route := range stats {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	breakerLines := make([]string, 0, len(routes))
	for _, route := range routes {
		breakerLines = append(breakerLines, fmt.Sprintf("%s: %s", route, stats[route].State))
	}

	recentLines := []string{"none"}
	if recent := b.exec.Recent(5); len(recent) > 0 {
		recentLines = recentLines[:0]
		for _, rec := range recent {
			recentLines = append(recentLines, fmt.Sprintf("%s <@%s> %s", rec.Action, rec.UserID, recordOutcome(rec)))
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Sensitivity", Value: pol.Sensitivity, Inline: true},
		{Name: "Mode", Value: settings.Mode, Inline: true},
		{Name: "Base mute", Value: (time.Duration(settings.BaseMuteMinutes) * time.Minute).String(), Inline: true},
		{Name: "Rules", Value: strings.Join(ruleLines, "\n"), Inline: false},
		{Name: "Breakers", Value: strings.Join(breakerLines, "\n"), Inline: false},
		{Name: "Recent actions", Value: strings.Join(recentLines, "\n"), Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Protection status", "", colorAction, fields))
}

func recordOutcome(rec executor.Record) string {
	switch {
	case rec.Skipped:
		return "skipped"
	case rec.Rejected:
		return "rejected"
	case rec.Success:
		return "success"
	default:
		return "failed"
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func (b *Bot) handleSensitivity(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := opts["value"]
	if !ok {
		b.respond(session, interaction, "Missing value.")
		return
	}
	value := opt.StringValue()
	if !config.ValidSensitivity(value) {
		b.respond(session, interaction, "Sensitivity must be low, medium, or high.")
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.Sensitivity = value
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("sensitivity update failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	b.recordConfigChange(ctx, interaction, "sensitivity set to "+value)
	b.respond(session, interaction, "Sensitivity set to "+value+".")
}

func (b *Bot) handleMode(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := opts["value"]
	if !ok {
		b.respond(session, interaction, "Missing value.")
		return
	}
	value := opt.StringValue()
	if value != "normal" && value != "audit" {
		b.respond(session, interaction, "Mode must be normal or audit.")
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.Mode = value
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("mode update failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	b.recordConfigChange(ctx, interaction, "mode set to "+value)
	b.respond(session, interaction, "Mode set to "+value+".")
}

func (b *Bot) handleMuteDuration(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := opts["minutes"]
	if !ok {
		b.respond(session, interaction, "Missing minutes.")
		return
	}
	minutes := int(opt.IntValue())
	if minutes < 1 {
		b.respond(session, interaction, "Minutes must be at least 1.")
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.BaseMuteMinutes = minutes
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("mute duration update failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	detail := fmt.Sprintf("base mute duration set to %dm", minutes)
	b.recordConfigChange(ctx, interaction, detail)
	b.respond(session, interaction, fmt.Sprintf("Base mute duration set to %d minutes.", minutes))
}

func (b *Bot) handleRule(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	nameOpt, ok := opts["name"]
	if !ok {
		b.respond(session, interaction, "Missing rule name.")
		return
	}
	enabledOpt, ok := opts["enabled"]
	if !ok {
		b.respond(session, interaction, "Missing on/off value.")
		return
	}
	name := nameOpt.StringValue()
	enabled := enabledOpt.StringValue() == "on"

	settings := b.guildSettings(ctx, interaction.GuildID)
	switch name {
	case "rate":
		settings.RateEnabled = enabled
	case "duplicate":
		settings.DuplicateEnabled = enabled
	case "link":
		settings.LinkEnabled = enabled
	case "account":
		settings.AccountEnabled = enabled
	default:
		b.respond(session, interaction, "Unknown rule.")
		return
	}
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("rule toggle failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	detail := fmt.Sprintf("rule %s turned %s", name, onOff(enabled))
	b.recordConfigChange(ctx, interaction, detail)
	b.respond(session, interaction, fmt.Sprintf("Rule %s is now %s.", name, onOff(enabled)))
}

func (b *Bot) handleDomain(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	listOpt, ok := opts["list"]
	if !ok {
		b.respond(session, interaction, "Missing list.")
		return
	}
	actionOpt, ok := opts["action"]
	if !ok {
		b.respond(session, interaction, "Missing action.")
		return
	}
	list := listOpt.StringValue()
	action := actionOpt.StringValue()
	domain := ""
	if opt, ok := opts["domain"]; ok {
		domain = strings.ToLower(strings.TrimSpace(opt.StringValue()))
	}

	if action == "list" {
		var domains []string
		var err error
		if list == "allow" {
			domains, err = b.store.ListDomainAllow(ctx, interaction.GuildID)
		} else {
			domains, err = b.store.ListDomainBlock(ctx, interaction.GuildID)
		}
		if err != nil {
			b.logger.Warn("domain list failed", zap.Error(err))
			b.respond(session, interaction, "Query failed.")
			return
		}
		value := "none"
		if len(domains) > 0 {
			value = strings.Join(domains, "\n")
		}
		fields := []*discordgo.MessageEmbedField{{Name: list + "list", Value: truncate(value, 1024), Inline: false}}
		b.respondEmbed(session, interaction, b.commandEmbed("Domain lists", "", colorAction, fields))
		return
	}

	if domain == "" {
		b.respond(session, interaction, "A domain is required for add and remove.")
		return
	}

	var err error
	switch {
	case list == "allow" && action == "add":
		err = b.store.AddDomainAllow(ctx, interaction.GuildID, domain)
	case list == "allow" && action == "remove":
		err = b.store.RemoveDomainAllow(ctx, interaction.GuildID, domain)
	case list == "block" && action == "add":
		err = b.store.AddDomainBlock(ctx, interaction.GuildID, domain)
	case list == "block" && action == "remove":
		err = b.store.RemoveDomainBlock(ctx, interaction.GuildID, domain)
	default:
		b.respond(session, interaction, "Unknown domain action.")
		return
	}
	if err != nil {
		b.logger.Warn("domain update failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	verb := "added to"
	if action == "remove" {
		verb = "removed from"
	}
	detail := fmt.Sprintf("domain %s %s the %slist", domain, verb, list)
	b.recordConfigChange(ctx, interaction, detail)
	b.respond(session, interaction, fmt.Sprintf("Domain %s %s the %slist.", domain, verb, list))
}

func (b *Bot) handleLog(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	filter := storage.AuditFilter{Limit: 10}
	if opt, ok := opts["user"]; ok {
		if user := opt.UserValue(session); user != nil {
			filter.UserID = user.ID
		}
	}
	if opt, ok := opts["action"]; ok {
		filter.Action = opt.StringValue()
	}
	if opt, ok := opts["limit"]; ok {
		filter.Limit = int(opt.IntValue())
		if filter.Limit > 25 {
			filter.Limit = 25
		}
	}

	entries, err := b.auditor.Query(ctx, interaction.GuildID, filter)
	if err != nil {
		b.logger.Warn("audit query failed", zap.Error(err))
		b.respond(session, interaction, "Query failed.")
		return
	}
	if len(entries) == 0 {
		b.respond(session, interaction, "No matching audit entries.")
		return
	}

	lines := make([]string, 0, len(entries)+1)
	if filter.UserID != "" {
		if off, err := b.store.GetOffense(ctx, interaction.GuildID, filter.UserID); err == nil && off.Count > 0 {
			lines = append(lines, fmt.Sprintf("Offense count: %d (last %s)", off.Count, off.LastAt.UTC().Format("2006-01-02 15:04")))
		}
	}
	for _, entry := range entries {
		line := fmt.Sprintf("`%s` %s <@%s> %s",
			entry.CreatedAt.UTC().Format("2006-01-02 15:04"),
			entry.Action, entry.UserID, entry.Outcome)
		if len(entry.Rules) > 0 {
			line += " [" + strings.Join(entry.Rules, ",") + "]"
		}
		lines = append(lines, line)
	}
	embed := b.commandEmbed("Audit log", truncate(strings.Join(lines, "\n"), 4000), colorAction, nil)
	b.respondEmbed(session, interaction, embed)
}

func (b *Bot) handleLogChannel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	settings := b.guildSettings(ctx, interaction.GuildID)

	opt, ok := opts["channel"]
	if !ok {
		value := "not set"
		if settings.SecurityLogChannel != "" {
			value = "<#" + settings.SecurityLogChannel + ">"
		}
		b.respond(session, interaction, "Security log channel: "+value)
		return
	}

	channel := opt.ChannelValue(session)
	if channel == nil {
		b.respond(session, interaction, "Channel not found.")
		return
	}
	settings.SecurityLogChannel = channel.ID
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Warn("log channel update failed", zap.Error(err))
		b.respond(session, interaction, "Update failed.")
		return
	}
	b.recordConfigChange(ctx, interaction, "security log channel set to "+channel.ID)
	b.respond(session, interaction, "Security log channel set to <#"+channel.ID+">.")
}

func (b *Bot) recordConfigChange(ctx context.Context, interaction *discordgo.InteractionCreate, detail string) {
	if err := b.auditor.RecordConfigChange(ctx, interaction.GuildID, moderatorID(interaction), detail); err != nil {
		b.logger.Warn("config change audit failed",
			zap.String("guild_id", interaction.GuildID),
			zap.Error(err))
	}
}
