package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/utils"
)

func floatPtr(v float64) *float64 {
	return &v
}

func capLabel(limit int64) string {
	if limit <= 0 {
		return "off"
	}
	return utils.FormatAmount(limit)
}

var GuildSettings = discord.SlashCommandCreate{
	Name:        "progression",
	Description: "⚙️ Configure progression for this server (requires Manage Server)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "view",
			Description: "Show the current settings",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "announce",
			Description: "Set the announcement channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "Where level-ups and events are announced",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "messagexp",
			Description: "Set the message XP range and cooldown",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "min",
					Description: "Minimum XP per message",
					Required:    true,
					MinValue:    intPtr(1),
				},
				discord.ApplicationCommandOptionInt{
					Name:        "max",
					Description: "Maximum XP per message",
					Required:    true,
					MinValue:    intPtr(1),
				},
				discord.ApplicationCommandOptionInt{
					Name:        "cooldown",
					Description: "Seconds between counted messages",
					Required:    true,
					MinValue:    intPtr(0),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "voicerate",
			Description: "Set coins earned per unmuted voice minute",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "coins",
					Description: "Coins per minute",
					Required:    true,
					MinValue:    intPtr(0),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "channelboost",
			Description: "Set an XP multiplier for a channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "The channel",
					Required:    true,
				},
				discord.ApplicationCommandOptionFloat{
					Name:        "multiplier",
					Description: "Multiplier (1.0 removes the boost)",
					Required:    true,
					MinValue:    floatPtr(0.1),
					MaxValue:    floatPtr(10),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "levelrole",
			Description: "Grant a role at a level milestone",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "level",
					Description: "The level that unlocks the role",
					Required:    true,
					MinValue:    intPtr(1),
				},
				discord.ApplicationCommandOptionRole{
					Name:        "role",
					Description: "The role to grant",
					Required:    true,
				},
				discord.ApplicationCommandOptionBool{
					Name:        "stackable",
					Description: "Keep lower level roles when this one is granted",
					Required:    false,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "dailycaps",
			Description: "Cap XP and coins earnable from activity per day (0 = unlimited)",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "xp",
					Description: "Max message XP per day",
					Required:    true,
					MinValue:    intPtr(0),
				},
				discord.ApplicationCommandOptionInt{
					Name:        "coins",
					Description: "Max voice coins per day",
					Required:    true,
					MinValue:    intPtr(0),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "autostart",
			Description: "Toggle automatic scheduled events",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionBool{
					Name:        "enabled",
					Description: "Whether scheduled events start on their own",
					Required:    true,
				},
			},
		},
	},
}

func GuildSettingsHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Settings only exist inside a server.")
		}
		if !requireManageGuild(e) {
			return utils.EH.CreateEphemeralError(e, "You need **Manage Server** for this.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		cfg, err := b.GuildRepository.Get(ctx, gid)
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to load the settings.")
		}

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "view":
			return settingsView(e, cfg)

		case "announce":
			channel := data.Channel("channel")
			cfg.AnnounceChannelID = channel.ID.String()

		case "messagexp":
			minXP := int64(data.Int("min"))
			maxXP := int64(data.Int("max"))
			if maxXP < minXP {
				return utils.EH.CreateEphemeralError(e, "`max` must be at least `min`.")
			}
			cfg.MessageXPMin = minXP
			cfg.MessageXPMax = maxXP
			cfg.MessageCooldownMS = int64(data.Int("cooldown")) * 1000

		case "voicerate":
			cfg.VoiceCoinsPerMinute = int64(data.Int("coins"))

		case "channelboost":
			channel := data.Channel("channel")
			mult := data.Float("multiplier")
			if cfg.ChannelMultipliers == nil {
				cfg.ChannelMultipliers = map[string]float64{}
			}
			if mult == 1.0 {
				delete(cfg.ChannelMultipliers, channel.ID.String())
			} else {
				cfg.ChannelMultipliers[channel.ID.String()] = mult
			}

		case "levelrole":
			role := data.Role("role")
			level := data.Int("level")
			stackable := false
			if s, ok := data.OptBool("stackable"); ok {
				stackable = s
			}
			replaced := false
			for i, lr := range cfg.LevelRoles {
				if lr.Level == level && lr.RoleID == role.ID.String() {
					cfg.LevelRoles[i].Stackable = stackable
					replaced = true
				}
			}
			if !replaced {
				cfg.LevelRoles = append(cfg.LevelRoles, models.LevelRole{
					Level:      level,
					RoleID:     role.ID.String(),
					Stackable:  stackable,
					AutoRemove: !stackable,
				})
			}

		case "dailycaps":
			cfg.DailyXPCap = int64(data.Int("xp"))
			cfg.DailyCoinCap = int64(data.Int("coins"))

		case "autostart":
			cfg.EventAutoStart = data.Bool("enabled")
		}

		if err := b.GuildRepository.Save(ctx, cfg); err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to save the settings.")
		}
		return utils.EH.CreateSuccessEmbed(e, "Settings updated.")
	}
}

func settingsView(e *handler.CommandEvent, cfg *models.GuildConfig) error {
	var roles strings.Builder
	for _, lr := range cfg.LevelRoles {
		fmt.Fprintf(&roles, "Level %d → <@&%s>", lr.Level, lr.RoleID)
		if lr.Stackable {
			roles.WriteString(" (stackable)")
		}
		roles.WriteString("\n")
	}
	if roles.Len() == 0 {
		roles.WriteString("none")
	}

	announce := "not set"
	if cfg.AnnounceChannelID != "" {
		announce = "<#" + cfg.AnnounceChannelID + ">"
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("⚙️ Progression Settings").
		SetColor(config.InfoColor).
		AddField("Level Curve", fmt.Sprintf("base %d XP, growth %.2f", cfg.BaseXP, cfg.GrowthRate), true).
		AddField("Message XP", fmt.Sprintf("%d–%d every %ds", cfg.MessageXPMin, cfg.MessageXPMax, cfg.MessageCooldownMS/1000), true).
		AddField("Voice Rate", fmt.Sprintf("%d coins/min", cfg.VoiceCoinsPerMinute), true).
		AddField("Daily Caps", fmt.Sprintf("xp %s, coins %s", capLabel(cfg.DailyXPCap), capLabel(cfg.DailyCoinCap)), true).
		AddField("Announcements", announce, true).
		AddField("Scheduled Events", fmt.Sprintf("autostart %v", cfg.EventAutoStart), true).
		AddField("Level Roles", roles.String(), false)

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{builder.Build()},
	})
}
