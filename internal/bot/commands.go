package bot

import "github.com/bwmarrin/discordgo"

func guardCommand() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	limitMin := 1.0

	return &discordgo.ApplicationCommand{
		Name:                     "guard",
		Description:              "Group protection controls",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show protection status for this guild",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "sensitivity",
				Description: "Set detection sensitivity",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "value",
						Description: "low, medium, or high",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "low", Value: "low"},
							{Name: "medium", Value: "medium"},
							{Name: "high", Value: "high"},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "mode",
				Description: "Set enforcement mode",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "value",
						Description: "normal enforces, audit only records",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "normal", Value: "normal"},
							{Name: "audit", Value: "audit"},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "mute-duration",
				Description: "Set the base mute duration",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "minutes",
						Description: "base mute duration in minutes",
						Required:    true,
						MinValue:    &limitMin,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "rule",
				Description: "Enable or disable a rule",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "name",
						Description: "rule to toggle",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "rate", Value: "rate"},
							{Name: "duplicate", Value: "duplicate"},
							{Name: "link", Value: "link"},
							{Name: "account", Value: "account"},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "enabled",
						Description: "on or off",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "on", Value: "on"},
							{Name: "off", Value: "off"},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "domain",
				Description: "Manage the guild domain lists",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "list",
						Description: "allow or block",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "allow", Value: "allow"},
							{Name: "block", Value: "block"},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "action",
						Description: "add, remove, or list",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "add", Value: "add"},
							{Name: "remove", Value: "remove"},
							{Name: "list", Value: "list"},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "domain",
						Description: "domain name",
						Required:    false,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "log",
				Description: "Query the audit log",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "filter by user",
						Required:    false,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "action",
						Description: "filter by action",
						Required:    false,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "warn", Value: "warn"},
							{Name: "mute", Value: "mute"},
							{Name: "config_change", Value: "config_change"},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "limit",
						Description: "number of entries (default 10)",
						Required:    false,
						MinValue:    &limitMin,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "log-channel",
				Description: "Show or set the security log channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionChannel,
						Name:        "channel",
						Description: "channel for protection events",
						Required:    false,
					},
				},
			},
		},
	}
}

// registerCommands reconciles the global command set: existing commands are
// edited in place, missing ones created, and anything this build no longer
// serves is deleted.
func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{guardCommand()}

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	return nil
}
