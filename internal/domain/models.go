// Package domain defines the persistence models for bots, chats, users,
// messages, updates, and conversational form state. These types are mapped
// with GORM and form the core data layer of the bot framework.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Message directions. Inbound messages come from the platform webhook,
// outbound messages are prompts and replies the framework sent.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// JSONMap is an arbitrary JSON object stored in a single column. It backs
// the Message extra map, the Update payload, and the FormState context.
type JSONMap map[string]any

// Value implements driver.Valuer, serializing the map to JSON text.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, accepting JSON text or bytes.
func (m *JSONMap) Scan(v any) error {
	if v == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch t := v.(type) {
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return errors.New("domain: unsupported JSONMap source type")
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Bot represents one configured bot account. Bots are reconciled from
// configuration at startup (see services.SyncBots); the token slug keys the
// webhook route so the raw token never appears in a URL log.
type Bot struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(64);not null;uniqueIndex"`
	Token     string    `json:"-"          gorm:"type:varchar(64);not null;uniqueIndex"`
	TokenSlug string    `json:"token_slug" gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Bot.
func (Bot) TableName() string { return "bots" }

// User mirrors a platform user, deduplicated on the platform-assigned ID.
type User struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	UserID       int64     `json:"user_id"       gorm:"not null;uniqueIndex"`
	IsBot        bool      `json:"is_bot"`
	FirstName    string    `json:"first_name"    gorm:"type:varchar(64)"`
	LastName     string    `json:"last_name"     gorm:"type:varchar(64)"`
	Username     string    `json:"username"      gorm:"type:varchar(64);index"`
	LanguageCode string    `json:"language_code" gorm:"type:varchar(8)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Chat mirrors a platform conversation, unique per (bot, chat_id).
type Chat struct {
	ID        uint      `json:"id"       gorm:"primaryKey"`
	BotID     uint      `json:"bot_id"   gorm:"not null;uniqueIndex:ux_bot_chat,priority:1"`
	ChatID    int64     `json:"chat_id"  gorm:"not null;uniqueIndex:ux_bot_chat,priority:2"`
	Type      string    `json:"type"     gorm:"type:varchar(32)"`
	Title     string    `json:"title"    gorm:"type:varchar(255)"`
	Username  string    `json:"username" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Bot Bot `json:"-" gorm:"foreignKey:BotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Messages is declared here rather than as a belongs-to on Message:
	// Chat carries its own ChatID column (the platform id), which makes a
	// foreignKey:ChatID tag on the Message side resolve against the wrong
	// struct and invert the constraint.
	Messages []Message `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message represents one inbound or outbound message in a chat. The pair
// (chat_id, message_id) is the platform identity; Date is the chat-scoped
// ordering key used by the resumption lookup.
//
// The framework's only writes into this schema beyond ingestion are the
// form pointers: FormStateID marks a prompt that owns a form ("root"
// messages), and Extra["form_root_pk"] marks follow-up prompts that continue
// an existing root's thread.
type Message struct {
	ID               uint      `json:"id"              gorm:"primaryKey"`
	ChatID           uint      `json:"chat_id"         gorm:"not null;uniqueIndex:ux_chat_msg,priority:1;index:idx_chat_date,priority:1"`
	MessageID        int64     `json:"message_id"      gorm:"not null;uniqueIndex:ux_chat_msg,priority:2"`
	Direction        string    `json:"direction"       gorm:"type:varchar(3);not null;default:'in';check:direction IN ('in','out')"`
	Date             time.Time `json:"date"            gorm:"index:idx_chat_date,priority:2"`
	Text             string    `json:"text"            gorm:"type:text"`
	FromUserID       *uint     `json:"from_user_id,omitempty"`
	ReplyToMessageID *uint     `json:"reply_to_message_id,omitempty"`
	Entities         JSONMap   `json:"entities"        gorm:"type:text"`
	ReplyMarkup      JSONMap   `json:"reply_markup"    gorm:"type:text"`
	Extra            JSONMap   `json:"extra"           gorm:"type:text"`
	FormStateID      *uint     `json:"form_state_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	FromUser       *User      `json:"-" gorm:"foreignKey:FromUserID;references:ID"`
	ReplyToMessage *Message   `json:"-" gorm:"foreignKey:ReplyToMessageID;references:ID"`
	FormState      *FormState `json:"-" gorm:"foreignKey:FormStateID;references:ID"`

	// Updates is declared here for the same reason as Chat.Messages: the
	// platform MessageID column on this struct would otherwise capture the
	// foreignKey tag of a belongs-to on the Update side.
	Updates []Update `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Update represents one normalized webhook delivery, deduplicated on the
// platform-assigned update_id. Handler records which handler claimed the
// update, for audit and for skipping webhook redeliveries.
type Update struct {
	ID              uint      `json:"id"        gorm:"primaryKey"`
	BotID           uint      `json:"bot_id"    gorm:"not null;index"`
	UpdateID        int64     `json:"update_id" gorm:"not null;uniqueIndex"`
	Type            string    `json:"type"      gorm:"type:varchar(20);not null;default:'message'"`
	Handler         string    `json:"handler"   gorm:"type:varchar(100)"`
	MessageID       *uint     `json:"message_id,omitempty"`
	CallbackQueryID string    `json:"callback_query_id,omitempty" gorm:"type:varchar(100)"`
	CallbackData    string    `json:"callback_data,omitempty"     gorm:"type:varchar(255)"`
	Payload         JSONMap   `json:"payload"   gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Bot Bot `json:"-" gorm:"foreignKey:BotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Update.
func (Update) TableName() string { return "updates" }

// IsCallback reports whether the update is a button press rather than a
// free-text message.
func (u *Update) IsCallback() bool { return u.Type == "callback_query" }

// FormState is the durable row of one running conversation. Kind is the
// stable registry key the form was registered under; Context accumulates the
// cleaned data plus any extra keys a handler stashes.
//
// Version counts saves for diagnostics only. Saves are last-writer-wins: two
// concurrent workers can load the same row, mutate it, and save, and the
// second save silently clobbers the first. This weak guarantee is inherited
// and deliberate; see DESIGN.md.
type FormState struct {
	ID            uint      `json:"id"             gorm:"primaryKey"`
	Kind          string    `json:"kind"           gorm:"type:varchar(100);not null;index"`
	CurrentField  string    `json:"current_field"  gorm:"type:varchar(100)"`
	PreviousField string    `json:"previous_field" gorm:"type:varchar(100)"`
	Context       JSONMap   `json:"context"        gorm:"type:text"`
	IsFinished    bool      `json:"is_finished"    gorm:"not null;default:false;index"`
	Handler       string    `json:"handler"        gorm:"type:varchar(100)"`
	Version       int       `json:"version"        gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for FormState.
func (FormState) TableName() string { return "form_states" }

// FieldState is the per-field decomposition of a form row: one record per
// field with its last value and validity, unique per (form_state, name).
type FieldState struct {
	ID          uint      `json:"id"            gorm:"primaryKey"`
	FormStateID uint      `json:"form_state_id" gorm:"not null;index;uniqueIndex:ux_form_field,priority:1"`
	Name        string    `json:"name"          gorm:"type:varchar(100);not null;uniqueIndex:ux_form_field,priority:2"`
	Value       string    `json:"value"         gorm:"type:text"`
	IsValid     bool      `json:"is_valid"      gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	FormState FormState `json:"-" gorm:"foreignKey:FormStateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FieldState.
func (FieldState) TableName() string { return "field_states" }
