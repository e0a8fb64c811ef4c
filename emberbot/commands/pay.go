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

var Pay = discord.SlashCommandCreate{
	Name:        "pay",
	Description: "💸 Send coins or tokens to another member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Who to pay",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How much to send",
			Required:    true,
			MinValue:    intPtr(1),
		},
		discord.ApplicationCommandOptionString{
			Name:        "currency",
			Description: "Which currency to send",
			Required:    false,
			Choices: []discord.ApplicationCommandOptionChoiceString{
				{Name: "Coins", Value: economy.CurrencyCoins},
				{Name: "Tokens", Value: economy.CurrencyTokens},
			},
		},
	},
}

func intPtr(v int) *int {
	return &v
}

func PayHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Payments only work inside a server.")
		}

		data := e.SlashCommandInteractionData()
		target := data.User("user")
		amount := int64(data.Int("amount"))
		currency := economy.CurrencyCoins
		if c, ok := data.OptString("currency"); ok {
			currency = c
		}

		if target.Bot {
			return utils.EH.CreateEphemeralError(e, "Bots have no use for your money.")
		}
		if target.ID == e.User().ID {
			return utils.EH.CreateEphemeralError(e, "You cannot pay yourself.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		result := b.Ledger.TransferCurrency(ctx, gid, e.User().ID.String(), target.ID.String(), currency, amount)
		if !result.Success {
			if result.Reason == economy.ReasonInsufficientFunds {
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
					"You need **%s** %s but only have **%s**.",
					utils.FormatAmount(result.Required), currency,
					utils.FormatAmount(result.Available)))
			}
			return utils.EH.CreateErrorEmbed(e, "The transfer failed. Please try again later.")
		}

		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
			"Sent **%s** %s to %s. Your balance: **%s**.",
			utils.FormatAmount(amount), currency, target.Mention(),
			utils.FormatAmount(result.NewBalance)))
	}
}
