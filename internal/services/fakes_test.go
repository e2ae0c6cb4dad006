package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// fakeStore is an in-memory stand-in for the repo package: it backs every
// repository interface the service layer consumes, so dispatcher tests can
// run a whole webhook turn without a database.
type fakeStore struct {
	nextID     uint
	users      map[int64]*domain.User
	chats      map[int64]*domain.Chat
	messages   map[uint]*domain.Message
	updates    map[int64]*domain.Update
	formStates map[uint]*domain.FormState
	fields     map[string]*domain.FieldState // key "formID/name"

	saveFormErr error
	createErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[int64]*domain.User{},
		chats:      map[int64]*domain.Chat{},
		messages:   map[uint]*domain.Message{},
		updates:    map[int64]*domain.Update{},
		formStates: map[uint]*domain.FormState{},
		fields:     map[string]*domain.FieldState{},
	}
}

func (s *fakeStore) id() uint {
	s.nextID++
	return s.nextID
}

// ----- IngestRepo -----

func (s *fakeStore) UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	if existing, ok := s.users[u.UserID]; ok {
		existing.FirstName = u.FirstName
		existing.Username = u.Username
		return existing, nil
	}
	u.ID = s.id()
	s.users[u.UserID] = u
	return u, nil
}

func (s *fakeStore) UpsertChat(ctx context.Context, db *gorm.DB, botID uint, c *domain.Chat) (*domain.Chat, error) {
	if existing, ok := s.chats[c.ChatID]; ok {
		return existing, nil
	}
	c.ID = s.id()
	c.BotID = botID
	s.chats[c.ChatID] = c
	return c, nil
}

func (s *fakeStore) UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	for _, existing := range s.messages {
		if existing.ChatID == m.ChatID && existing.MessageID == m.MessageID {
			existing.Text = m.Text
			existing.Date = m.Date
			existing.Direction = m.Direction
			return existing, nil
		}
	}
	m.ID = s.id()
	s.messages[m.ID] = m
	return m, nil
}

func (s *fakeStore) GetMessageByPlatformID(ctx context.Context, db *gorm.DB, chatID uint, messageID int64) (*domain.Message, error) {
	for _, m := range s.messages {
		if m.ChatID == chatID && m.MessageID == messageID {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) CreateUpdate(ctx context.Context, db *gorm.DB, u *domain.Update) (*domain.Update, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if _, ok := s.updates[u.UpdateID]; ok {
		return nil, repo.ErrDuplicate
	}
	u.ID = s.id()
	s.updates[u.UpdateID] = u
	return u, nil
}

// ----- FormLookupRepo -----

func (s *fakeStore) PreviousOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint, before time.Time) (*domain.Message, error) {
	var best *domain.Message
	for _, m := range s.messages {
		if m.ChatID != chatID || m.Direction != domain.DirectionOut {
			continue
		}
		if !before.IsZero() && !m.Date.Before(before) {
			continue
		}
		if best == nil || m.Date.After(best.Date) || (m.Date.Equal(best.Date) && m.ID > best.ID) {
			best = m
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (s *fakeStore) LatestOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint) (*domain.Message, error) {
	return s.PreviousOutboundMessage(ctx, db, chatID, time.Time{})
}

func (s *fakeStore) GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (s *fakeStore) GetFormState(ctx context.Context, db *gorm.DB, id uint) (*domain.FormState, error) {
	fs, ok := s.formStates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return fs, nil
}

// ----- FormStoreRepo -----

func (s *fakeStore) CreateFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	fs.ID = s.id()
	s.formStates[fs.ID] = fs
	return nil
}

func (s *fakeStore) SaveFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	if s.saveFormErr != nil {
		return s.saveFormErr
	}
	if _, ok := s.formStates[fs.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	fs.Version++
	s.formStates[fs.ID] = fs
	return nil
}

func (s *fakeStore) UpsertFieldState(ctx context.Context, db *gorm.DB, formStateID uint, name, value string, valid bool) error {
	key := fmt.Sprintf("%d/%s", formStateID, name)
	if existing, ok := s.fields[key]; ok {
		existing.Value = value
		existing.IsValid = valid
		return nil
	}
	s.fields[key] = &domain.FieldState{
		ID: s.id(), FormStateID: formStateID, Name: name, Value: value, IsValid: valid,
	}
	return nil
}

func (s *fakeStore) SetMessageFormState(ctx context.Context, db *gorm.DB, messageID, formStateID uint) error {
	m, ok := s.messages[messageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fsID := formStateID
	m.FormStateID = &fsID
	return nil
}

func (s *fakeStore) SetMessageExtra(ctx context.Context, db *gorm.DB, messageID uint, extra domain.JSONMap) error {
	m, ok := s.messages[messageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Extra = extra
	return nil
}

// ----- AuditRepo -----

func (s *fakeStore) SetUpdateHandler(ctx context.Context, db *gorm.DB, id uint, handler string) error {
	for _, u := range s.updates {
		if u.ID == id {
			u.Handler = handler
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ----- Fake Bot API client -----

type fakeAPI struct {
	nextMessageID int64
	sent          []telegram.SendMessageParams
	edited        []telegram.EditMessageTextParams
	sendErr       error
}

func (a *fakeAPI) SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	a.sent = append(a.sent, params)
	a.nextMessageID++
	return &telegram.Message{
		MessageID:   1000 + a.nextMessageID,
		Date:        1700000000 + a.nextMessageID,
		Chat:        telegram.Chat{ID: params.ChatID},
		Text:        params.Text,
		ReplyMarkup: params.ReplyMarkup,
	}, nil
}

func (a *fakeAPI) EditMessageText(ctx context.Context, params telegram.EditMessageTextParams) (*telegram.Message, error) {
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	a.edited = append(a.edited, params)
	return &telegram.Message{
		MessageID:   params.MessageID,
		Date:        1700000000,
		Chat:        telegram.Chat{ID: params.ChatID},
		Text:        params.Text,
		ReplyMarkup: params.ReplyMarkup,
	}, nil
}
