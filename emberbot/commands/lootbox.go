package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/lootbox"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var LootBox = discord.SlashCommandCreate{
	Name:        "lootbox",
	Description: "📦 Claim loot boxes that drop in chat",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "open",
			Description: "Open the box sitting in this channel",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "chance",
			Description: "See your current drop chance",
		},
	},
}

func LootBoxHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Loot boxes only drop inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		userID := e.User().ID.String()
		channelID := e.Channel().ID().String()

		switch *data.SubCommandName {
		case "open":
			result := b.Spawner.Open(ctx, gid, channelID, userID)
			if !result.Success {
				if result.Reason == lootbox.ReasonNoBox {
					return utils.EH.CreateEphemeralError(e, "There is no unclaimed box in this channel.")
				}
				return utils.EH.CreateErrorEmbed(e, "The box would not open. Try again.")
			}

			if err := b.UserRepository.IncrementBoxesOpened(ctx, gid, userID); err != nil {
				slog.Warn("Failed to bump box counter",
					slog.String("type", "db"),
					slog.String("user_id", userID),
					slog.Any("error", err))
			}

			color, ok := config.RarityColors[result.Rarity]
			if !ok {
				color = config.LootBoxColor
			}
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{discord.NewEmbedBuilder().
					SetTitle(fmt.Sprintf("📦 %s box opened!", result.Rarity)).
					SetDescription(fmt.Sprintf("You found **%s** coins and **%s** tokens.",
						utils.FormatAmount(result.Coins), utils.FormatAmount(result.Tokens))).
					SetColor(color).
					Build()},
			})

		case "chance":
			user, err := b.UserRepository.GetOrCreate(ctx, gid, userID)
			if err != nil {
				return utils.EH.CreateErrorEmbed(e, "Failed to compute your drop chance.")
			}
			p := b.Spawner.SpawnChance(gid, user, time.Now())
			return utils.EH.CreateInfoEmbed(e, fmt.Sprintf(
				"Each qualifying message has a **%.2f%%** chance to drop a loot box for you.", p*100))
		}
		return nil
	}
}
