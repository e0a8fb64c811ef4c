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

var Rank = discord.SlashCommandCreate{
	Name:        "rank",
	Description: "📈 View your level and progress towards the next one",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Whose rank to view (defaults to you)",
			Required:    false,
		},
	},
}

func RankHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Ranks only exist inside a server.")
		}

		target := e.User()
		if u, ok := e.SlashCommandInteractionData().OptUser("user"); ok {
			target = u
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		progress, err := b.Progression.ProgressFor(ctx, gid, target.ID.String())
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to fetch rank data. Please try again later.")
		}

		ratio := 0.0
		if progress.NeededForNext > 0 {
			ratio = float64(progress.IntoLevel) / float64(progress.NeededForNext)
		}

		description := fmt.Sprintf("```\nLevel %d\n%s\n%s / %s XP\n```",
			progress.Level,
			utils.ProgressBar(ratio, 14),
			utils.FormatAmount(progress.IntoLevel),
			utils.FormatAmount(progress.NeededForNext),
		)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{discord.NewEmbedBuilder().
				SetTitle(fmt.Sprintf("📈 %s's Rank", target.Username)).
				SetDescription(description).
				SetColor(config.InfoColor).
				AddField("Total XP", utils.FormatAmount(progress.TotalXP), true).
				Build()},
		})
	}
}
