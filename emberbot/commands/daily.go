package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var Daily = discord.SlashCommandCreate{
	Name:        "daily",
	Description: "🎁 Claim your daily reward and keep your streak alive",
}

func DailyHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Daily rewards can only be claimed in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		result := b.Ledger.GiveDailyReward(ctx, gid, e.User().ID.String())
		if !result.Success {
			if result.Reason == economy.ReasonAlreadyClaimed {
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
					"You already claimed today. Next claim in **%s**.",
					utils.FormatDuration(result.Remaining)))
			}
			return utils.EH.CreateErrorEmbed(e, "Failed to claim your daily reward. Please try again later.")
		}

		desc := fmt.Sprintf("You received **%s** coins!", utils.FormatAmount(result.Coins))
		if result.Lucky {
			desc += "\n🍀 **Lucky claim!** Your reward was boosted by 50%."
		}
		if result.StreakBroken {
			desc += "\n💔 Your streak was broken and reset to day 1."
		}

		builder := discord.NewEmbedBuilder().
			SetTitle("🎁 Daily Reward").
			SetDescription(desc).
			SetColor(config.SuccessColor).
			AddField("Streak", fmt.Sprintf("🔥 %d days", result.Streak), true).
			AddField("Balance", utils.FormatAmount(result.NewBalance)+" coins", true)

		if result.MilestoneCoins > 0 || result.MilestoneTokens > 0 {
			builder.AddField("Milestone Bonus",
				fmt.Sprintf("+%s coins, +%s tokens",
					utils.FormatAmount(result.MilestoneCoins),
					utils.FormatAmount(result.MilestoneTokens)),
				false)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{builder.Build()},
		})
	}
}
