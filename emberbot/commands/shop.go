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
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/utils"
	"github.com/sahilm/fuzzy"
)

var Shop = discord.SlashCommandCreate{
	Name:        "shop",
	Description: "🛒 Browse and buy from the reward shop",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "Browse the catalog",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "buy",
			Description: "Buy an item",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         "item",
					Description:  "The item to buy",
					Required:     true,
					Autocomplete: true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "quantity",
					Description: "How many to buy (default 1)",
					Required:    false,
					MinValue:    intPtr(1),
				},
			},
		},
	},
}

// shopItems implements fuzzy.Source over the catalog for autocomplete.
type shopItems []*models.ShopItem

func (s shopItems) String(i int) string { return s[i].Name }
func (s shopItems) Len() int            { return len(s) }

func ShopHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "The shop only exists inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "list":
			return shopList(ctx, b, e, gid)
		case "buy":
			quantity := 1
			if q, ok := data.OptInt("quantity"); ok {
				quantity = q
			}
			return shopBuy(ctx, b, e, gid, data.String("item"), quantity)
		}
		return nil
	}
}

func shopList(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid string) error {
	items, err := b.ShopRepository.List(ctx)
	if err != nil {
		return utils.EH.CreateErrorEmbed(e, "Failed to load the catalog. Please try again later.")
	}
	if len(items) == 0 {
		return utils.EH.CreateInfoEmbed(e, "The shop is empty right now.")
	}

	discount := b.EventRegistry.ActiveSaleDiscount(gid)

	var sb strings.Builder
	for _, item := range items {
		price := item.Price
		priceStr := fmt.Sprintf("**%s** %s", utils.FormatAmount(price), item.Currency)
		if discount > 0 {
			sale := price - int64(float64(price)*discount)
			priceStr = fmt.Sprintf("~~%s~~ **%s** %s", utils.FormatAmount(price), utils.FormatAmount(sale), item.Currency)
		}
		fmt.Fprintf(&sb, "`%s` — %s • %s", item.ID, item.Name, priceStr)
		if item.MinLevel > 0 {
			fmt.Fprintf(&sb, " • requires level %d", item.MinLevel)
		}
		if !item.Unlimited() {
			fmt.Fprintf(&sb, " • %d left", item.Stock)
		}
		sb.WriteString("\n")
	}

	title := "🛒 Reward Shop"
	if discount > 0 {
		title += fmt.Sprintf(" — %.0f%% off!", discount*100)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{discord.NewEmbedBuilder().
			SetTitle(title).
			SetDescription(sb.String()).
			SetColor(config.InfoColor).
			Build()},
	})
}

func shopBuy(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid, itemID string, quantity int) error {
	result := b.Shop.PurchaseItem(ctx, gid, e.User().ID.String(), itemID, quantity)
	if !result.Success {
		switch result.Reason {
		case economy.ReasonUnknownItem:
			return utils.EH.CreateErrorEmbed(e, "That item does not exist.")
		case economy.ReasonOutOfStock:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("**%s** is out of stock.", result.ItemName))
		case economy.ReasonLevelTooLow:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"**%s** requires level %d.", result.ItemName, result.Required))
		case economy.ReasonLevelTooHigh:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"**%s** is only for members up to level %d.", result.ItemName, result.Required))
		case economy.ReasonMissingRole:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"**%s** requires a role you do not have.", result.ItemName))
		case economy.ReasonInsufficientFunds:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"You need **%s** but cannot cover it.", utils.FormatAmount(result.Required)))
		default:
			return utils.EH.CreateErrorEmbed(e, "The purchase failed. Please try again later.")
		}
	}

	desc := fmt.Sprintf("You bought **%dx %s** for **%s**.",
		result.Quantity, result.ItemName, utils.FormatAmount(result.FinalPrice))
	if result.Discount > 0 {
		desc += fmt.Sprintf(" (saved %s in the sale!)", utils.FormatAmount(result.Discount))
	}
	return utils.EH.CreateSuccessEmbed(e, desc)
}

// ShopAutocompleteHandler fuzzy-matches catalog names against the typed
// prefix and returns item ids as choice values.
func ShopAutocompleteHandler(b *emberbot.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		items, err := b.ShopRepository.List(ctx)
		if err != nil {
			return e.AutocompleteResult(nil)
		}

		query := strings.TrimSpace(e.Data.String("item"))
		var choices []discord.AutocompleteChoice

		add := func(item *models.ShopItem) {
			choices = append(choices, discord.AutocompleteChoiceString{
				Name:  fmt.Sprintf("%s — %s %s", item.Name, utils.FormatAmount(item.Price), item.Currency),
				Value: item.ID,
			})
		}

		if query == "" {
			for _, item := range items {
				if len(choices) >= config.MaxPageSize {
					break
				}
				add(item)
			}
			return e.AutocompleteResult(choices)
		}

		matches := fuzzy.FindFrom(query, shopItems(items))
		for _, match := range matches {
			if len(choices) >= config.MaxPageSize {
				break
			}
			add(items[match.Index])
		}
		return e.AutocompleteResult(choices)
	}
}
