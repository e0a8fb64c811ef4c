package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your coins, tokens and active boost",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Whose balance to view (defaults to you)",
			Required:    false,
		},
	},
}

func BalanceHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Balances only exist inside a server.")
		}

		target := e.User()
		if u, ok := e.SlashCommandInteractionData().OptUser("user"); ok {
			target = u
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		user, err := b.UserRepository.GetOrCreate(ctx, gid, target.ID.String())
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to fetch the balance. Please try again later.")
		}

		now := time.Now()
		builder := discord.NewEmbedBuilder().
			SetTitle("💰 Balance").
			SetColor(config.InfoColor).
			AddField("Coins", utils.FormatAmount(user.Coins), true).
			AddField("Tokens", utils.FormatAmount(user.Tokens), true).
			AddField("Daily Streak", fmt.Sprintf("🔥 %d days", user.StreakDays), true).
			SetFooter(fmt.Sprintf("Requested by %s", e.User().Username), "").
			SetTimestamp(now)

		if user.BoostActive(now) {
			builder.AddField("Active Boost",
				fmt.Sprintf("%.1fx until <t:%d:R>", user.BoostMultiplier, user.BoostExpiresAt.Unix()),
				false)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{builder.Build()},
		})
	}
}
