package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Command defines a bot command and its Telegram menu description.
type Command struct {
	Name        string // without slash
	Description string
}

var botCommands = []Command{
	{Name: "start", Description: "How to use the bot"},
	{Name: "bias", Description: "Check a text for bias and contradictions"},
	{Name: "damage", Description: "Check a photo for damage (as photo caption)"},
	{Name: "ocr", Description: "Read and analyze the text in a photo (as photo caption)"},
	{Name: "history", Description: "List your recent analyses"},
	{Name: "show", Description: "Show one analysis from your history"},
}

// RegisterCommands sets the bot's command menu in Telegram. Call once at
// startup.
func RegisterCommands(tg MessageSender) {
	commands := make([]tgbotapi.BotCommand, len(botCommands))
	for i, cmd := range botCommands {
		commands[i] = tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		}
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	if _, err := tg.Request(config); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	} else {
		log.Info().Int("count", len(commands)).Msg("registered bot commands")
	}
}
