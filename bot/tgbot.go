package bot

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"Skycast/core"
	"Skycast/dialogue"
	"Skycast/lib/sl"
)

const parseModeMarkdown = "markdown"

type TgBot struct {
	conf     *core.Config
	api      *tgbotapi.BotAPI
	dialogue core.DialogueService
	log      *slog.Logger
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		conf: conf,
		log:  log.With(sl.Module("bot")),
	}

	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api

	return tgBot, nil
}

// SetDialogue sets the dialogue service handling inbound events.
func (t *TgBot) SetDialogue(d core.DialogueService) {
	t.dialogue = d
}

func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	for update := range updates {
		event, ok := t.translate(update)
		if !ok {
			continue
		}
		go t.dialogue.Handle(event)
	}
	return nil
}

func (t *TgBot) Stop() {
	t.api.StopReceivingUpdates()
}

// translate maps a raw Telegram update onto a core.Event.
func (t *TgBot) translate(update tgbotapi.Update) (core.Event, bool) {
	if cb := update.CallbackQuery; cb != nil && cb.Message != nil {
		return core.Event{
			ChatID:       cb.Message.Chat.ID,
			MessageID:    cb.Message.MessageID,
			Kind:         core.EventCallback,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}, true
	}

	incoming := update.Message
	if incoming == nil {
		return core.Event{}, false
	}

	event := core.Event{
		ChatID:    incoming.Chat.ID,
		MessageID: incoming.MessageID,
	}
	switch {
	case incoming.IsCommand():
		event.Kind = core.EventCommand
		event.Command = incoming.Command()
	case incoming.Location != nil:
		event.Kind = core.EventLocation
		event.Latitude = incoming.Location.Latitude
		event.Longitude = incoming.Location.Longitude
	case incoming.Text != "":
		event.Kind = core.EventText
		event.Text = incoming.Text
	default:
		return core.Event{}, false
	}
	return event, true
}

func (t *TgBot) SendText(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TgBot) SendButtons(chatID int64, text string, buttons []core.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = inlineKeyboard(buttons)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// SendMenu sends text together with the persistent reply keyboard.
func (t *TgBot) SendMenu(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(dialogue.MenuCurrent),
			tgbotapi.NewKeyboardButton(dialogue.MenuForecast),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(dialogue.MenuSettings),
		),
	)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TgBot) SendPhotoURL(chatID int64, url, caption string, buttons []core.Button) (int, error) {
	msg := tgbotapi.NewPhotoShare(chatID, url)
	msg.Caption = caption
	msg.ParseMode = parseModeMarkdown
	if len(buttons) > 0 {
		msg.ReplyMarkup = inlineKeyboard(buttons)
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TgBot) SendPhotoBytes(chatID int64, name string, data []byte, caption string) (int, error) {
	msg := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	msg.Caption = caption
	msg.ParseMode = parseModeMarkdown
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TgBot) EditText(chatID int64, messageID int, text string, buttons []core.Button) error {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(buttons) > 0 {
		kb := inlineKeyboard(buttons)
		msg.ReplyMarkup = &kb
	}
	_, err := t.api.Send(msg)
	return err
}

func (t *TgBot) EditCaption(chatID int64, messageID int, caption string) error {
	msg := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	msg.ParseMode = parseModeMarkdown
	_, err := t.api.Send(msg)
	return err
}

func (t *TgBot) DeleteMessage(chatID int64, messageID int) error {
	_, err := t.api.DeleteMessage(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (t *TgBot) AnswerCallback(callbackID string) error {
	_, err := t.api.AnswerCallbackQuery(tgbotapi.NewCallback(callbackID, ""))
	return err
}

// one button per row, matching the choice layout
func inlineKeyboard(buttons []core.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
