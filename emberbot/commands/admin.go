package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var XPAdmin = discord.SlashCommandCreate{
	Name:        "xpadmin",
	Description: "🛠️ Adjust member progression (requires Manage Server)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "give",
			Description: "Grant XP to a member",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "The member",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "amount",
					Description: "XP to grant",
					Required:    true,
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "remove",
			Description: "Deduct XP from a member",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "The member",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "amount",
					Description: "XP to deduct",
					Required:    true,
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "setlevel",
			Description: "Pin a member to an exact level",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "The member",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "level",
					Description: "The level to set",
					Required:    true,
					MinValue:    intPtr(0),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "reset",
			Description: "Wipe a member's progression and balances",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "The member",
					Required:    true,
				},
			},
		},
	},
}

func XPAdminHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Admin commands only work inside a server.")
		}
		if !requireManageGuild(e) {
			return utils.EH.CreateEphemeralError(e, "You need **Manage Server** for this.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		target := data.User("user")
		targetID := target.ID.String()

		switch *data.SubCommandName {
		case "give":
			amount := int64(data.Int("amount"))
			result, err := b.Progression.GrantXP(ctx, gid, targetID, amount)
			if err != nil {
				return utils.EH.CreateErrorEmbed(e, "Failed to grant XP.")
			}
			msg := fmt.Sprintf("Granted **%s** XP to %s.", utils.FormatAmount(amount), target.Mention())
			if result.LeveledUp {
				msg += fmt.Sprintf(" They are now level **%d**.", result.NewLevel)
			}
			return utils.EH.CreateSuccessEmbed(e, msg)

		case "remove":
			amount := int64(data.Int("amount"))
			result, err := b.Progression.RemoveXP(ctx, gid, targetID, amount)
			if err != nil {
				return utils.EH.CreateErrorEmbed(e, "Failed to deduct XP.")
			}
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
				"Deducted XP from %s. They are now level **%d** with **%s** total XP.",
				target.Mention(), result.NewLevel, utils.FormatAmount(result.TotalXP)))

		case "setlevel":
			level := data.Int("level")
			if err := b.Progression.SetLevel(ctx, gid, targetID, level); err != nil {
				return utils.EH.CreateErrorEmbed(e, "Failed to set the level.")
			}
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
				"%s is now pinned to level **%d**.", target.Mention(), level))

		case "reset":
			if err := b.UserRepository.Reset(ctx, gid, targetID); err != nil {
				return utils.EH.CreateErrorEmbed(e, "Failed to reset the member.")
			}
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
				"%s's progression and balances were wiped.", target.Mention()))
		}
		return nil
	}
}
