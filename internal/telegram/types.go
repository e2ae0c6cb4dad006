// Package telegram implements the outbound Bot API client and the wire types
// exchanged with the platform. Types mirror the official Bot API JSON shapes;
// only the subset the framework consumes is modeled.
package telegram

import "strings"

// User represents a Telegram user or bot account.
type User struct {
	ID                      int64  `json:"id"`
	IsBot                   bool   `json:"is_bot"`
	FirstName               string `json:"first_name"`
	LastName                string `json:"last_name,omitempty"`
	Username                string `json:"username,omitempty"`
	LanguageCode            string `json:"language_code,omitempty"`
	CanJoinGroups           bool   `json:"can_join_groups,omitempty"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages,omitempty"`
	SupportsInlineQueries   bool   `json:"supports_inline_queries,omitempty"`
}

// Chat represents a private, group, supergroup, or channel conversation.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// MessageEntity marks a span of special text (command, mention, URL, ...)
// inside a message.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
	User   *User  `json:"user,omitempty"`
}

// EntityText extracts the substring of text covered by the entity. Offsets
// outside the string yield "".
func (e MessageEntity) EntityText(text string) string {
	runes := []rune(text)
	if e.Offset < 0 || e.Offset+e.Length > len(runes) {
		return ""
	}
	return string(runes[e.Offset : e.Offset+e.Length])
}

// InlineKeyboardButton is one selectable option attached to a message.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is a grid of inline keyboard buttons.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Message represents one inbound or outbound message.
type Message struct {
	MessageID      int64                 `json:"message_id"`
	From           *User                 `json:"from,omitempty"`
	Date           int64                 `json:"date"`
	Chat           Chat                  `json:"chat"`
	ReplyToMessage *Message              `json:"reply_to_message,omitempty"`
	EditDate       int64                 `json:"edit_date,omitempty"`
	Text           string                `json:"text,omitempty"`
	Entities       []MessageEntity       `json:"entities,omitempty"`
	Caption        string                `json:"caption,omitempty"`
	ReplyMarkup    *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// Command returns the leading bot_command entity text ("/start") or "" when
// the message carries none.
func (m *Message) Command() string {
	if m == nil {
		return ""
	}
	for _, e := range m.Entities {
		if e.Type == "bot_command" {
			cmd := e.EntityText(m.Text)
			// Strip the "@BotName" suffix used in group chats.
			if i := strings.Index(cmd, "@"); i > 0 {
				cmd = cmd[:i]
			}
			return cmd
		}
	}
	return ""
}

// CallbackQuery is an inbound button press on an inline keyboard.
type CallbackQuery struct {
	ID           string   `json:"id"`
	From         User     `json:"from"`
	Message      *Message `json:"message,omitempty"`
	ChatInstance string   `json:"chat_instance,omitempty"`
	Data         string   `json:"data,omitempty"`
}

// Update types as stored on the persistent Update row.
const (
	UpdateTypeMessage           = "message"
	UpdateTypeEditedMessage     = "edited_message"
	UpdateTypeChannelPost       = "channel_post"
	UpdateTypeEditedChannelPost = "edited_channel_post"
	UpdateTypeCallbackQuery     = "callback_query"
)

// Update is one normalized webhook delivery.
type Update struct {
	UpdateID          int64          `json:"update_id"`
	Message           *Message       `json:"message,omitempty"`
	EditedMessage     *Message       `json:"edited_message,omitempty"`
	ChannelPost       *Message       `json:"channel_post,omitempty"`
	EditedChannelPost *Message       `json:"edited_channel_post,omitempty"`
	CallbackQuery     *CallbackQuery `json:"callback_query,omitempty"`
}

// Type classifies the update by which payload member is set.
func (u *Update) Type() string {
	switch {
	case u.Message != nil:
		return UpdateTypeMessage
	case u.EditedMessage != nil:
		return UpdateTypeEditedMessage
	case u.ChannelPost != nil:
		return UpdateTypeChannelPost
	case u.EditedChannelPost != nil:
		return UpdateTypeEditedChannelPost
	case u.CallbackQuery != nil:
		return UpdateTypeCallbackQuery
	default:
		return ""
	}
}

// EffectiveMessage returns the message the update is about, following the
// callback query's bound message when present.
func (u *Update) EffectiveMessage() *Message {
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	case u.CallbackQuery != nil:
		return u.CallbackQuery.Message
	default:
		return nil
	}
}

// EffectiveUser returns the user who produced the update, or nil for
// anonymous channel posts.
func (u *Update) EffectiveUser() *User {
	if u.CallbackQuery != nil {
		user := u.CallbackQuery.From
		return &user
	}
	if m := u.EffectiveMessage(); m != nil {
		return m.From
	}
	return nil
}

// Text returns the free-text input carried by the update: message text for
// message-ish updates, callback data for button presses.
func (u *Update) Text() string {
	if u.CallbackQuery != nil {
		return u.CallbackQuery.Data
	}
	if m := u.EffectiveMessage(); m != nil {
		return m.Text
	}
	return ""
}

// WebhookInfo describes the current webhook registration of a bot.
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}
