package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/economy/blackmarket"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var Gamble = discord.SlashCommandCreate{
	Name:        "gamble",
	Description: "🎲 Risk your coins on the black market",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How much to bet",
			Required:    true,
			MinValue:    intPtr(1),
		},
		discord.ApplicationCommandOptionString{
			Name:        "currency",
			Description: "Which currency to bet",
			Required:    false,
			Choices: []discord.ApplicationCommandOptionChoiceString{
				{Name: "Coins", Value: economy.CurrencyCoins},
				{Name: "Tokens", Value: economy.CurrencyTokens},
			},
		},
	},
}

func GambleHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "The black market only operates inside a server.")
		}

		userID := e.User().ID.String()
		if rl := b.Limiter.Attempt(userID, "gamble"); !rl.Allowed {
			return utils.EH.CreateEphemeralError(e, fmt.Sprintf(
				"Slow down. Try again in **%s**.", utils.FormatDuration(rl.RetryAfter)))
		}

		data := e.SlashCommandInteractionData()
		amount := int64(data.Int("amount"))
		currency := economy.CurrencyCoins
		if c, ok := data.OptString("currency"); ok {
			currency = c
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		result := b.Market.Gamble(ctx, gid, userID, amount, currency)
		if !result.Success {
			switch result.Reason {
			case blackmarket.ReasonJailed:
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
					"You are in jail until <t:%d:R>. Pay bail with `/blackmarket bail`.", result.Until.Unix()))
			case blackmarket.ReasonBanned:
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
					"You are banned from the black market until <t:%d:R>.", result.Until.Unix()))
			case economy.ReasonInsufficientFunds:
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
					"You need **%s** %s but only have **%s**.",
					utils.FormatAmount(result.Required), currency,
					utils.FormatAmount(result.Available)))
			default:
				return utils.EH.CreateErrorEmbed(e, "The bet could not be placed.")
			}
		}

		builder := discord.NewEmbedBuilder().SetColor(config.MarketColor)

		switch result.Outcome {
		case blackmarket.OutcomeWin:
			builder.SetTitle("🎲 You won!").
				SetDescription(fmt.Sprintf("Your bet of **%s** paid out **%s** %s.",
					utils.FormatAmount(amount), utils.FormatAmount(result.Payout), currency)).
				SetColor(config.SuccessColor)
		case blackmarket.OutcomeLose:
			builder.SetTitle("🎲 You lost").
				SetDescription(fmt.Sprintf("Your bet of **%s** %s is gone.",
					utils.FormatAmount(amount), currency))
		case blackmarket.OutcomeRaid:
			builder.SetTitle("🚨 Raided!").
				SetDescription(fmt.Sprintf(
					"The authorities raided the market. **%s** was confiscated and you are jailed until <t:%d:R>.",
					utils.FormatAmount(result.Confiscated), result.JailedUntil.Unix())).
				SetColor(config.ErrorColor)
		}

		if result.Robbed > 0 {
			builder.AddField("🔪 Robbed", fmt.Sprintf(
				"Thieves took **%s** on your way out.", utils.FormatAmount(result.Robbed)), false)
		}
		if result.Confiscated > 0 && result.Outcome != blackmarket.OutcomeRaid {
			builder.AddField("🚨 Heat Raid", fmt.Sprintf(
				"Your heat drew a raid: **%s** confiscated, jailed until <t:%d:R>.",
				utils.FormatAmount(result.Confiscated), result.JailedUntil.Unix()), false)
		}

		builder.AddField("Heat", fmt.Sprintf("🌡️ %d/100 (+%d)", result.Heat, result.HeatGained), true)
		builder.AddField("Balance", utils.FormatAmount(result.NewBalance)+" "+currency, true)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{builder.Build()},
		})
	}
}
