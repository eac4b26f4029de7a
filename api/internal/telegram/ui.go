package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"homework-mentor/api/internal/i18n"
)

func submitKeyboard(loc i18n.Locale) tgbotapi.InlineKeyboardMarkup {
	solve := tgbotapi.NewInlineKeyboardButtonData(loc.T(i18n.KeySubmit), callbackSolve)
	reset := tgbotapi.NewInlineKeyboardButtonData("✖", callbackClear)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(solve, reset))
}
