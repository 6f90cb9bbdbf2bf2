// Package platformtest provides a recording in-memory Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
)

// BotID is the author ID the fake uses for messages it sends.
const BotID = "bot"

// SentMessage is one recorded SendMessage or EditMessage call.
type SentMessage struct {
	ID        string
	ChannelID string
	Message   platform.Message
}

// Thread is one recorded CreateThread call.
type Thread struct {
	ID       string
	ParentID string
	Name     string
}

// DM is one recorded direct message.
type DM struct {
	UserID  string
	Message platform.Message
}

// PermissionChange is one recorded SetCategoryPermission call.
type PermissionChange struct {
	CategoryID string
	UserID     string
	AllowView  bool
}

// Fake records every call. The Fail* fields inject errors into the matching
// operation; set them before the code under test runs.
type Fake struct {
	mu  sync.Mutex
	seq int

	Threads     []Thread
	Sent        []SentMessage
	Edits       []SentMessage
	DMs         []DM
	Permissions []PermissionChange
	Deleted     []string
	Archived    []string
	history     map[string][]domain.TicketMessage
	roles       map[string]map[string]bool

	FailCreateThread error
	FailSend         error
	FailDM           error
	FailHistory      error
	FailPermission   error
	FailAddRole      error
	FailRemoveRole   error
	FailDelete       error
	FailArchive      error
	// FailSendTo fails SendMessage for specific channels only.
	FailSendTo map[string]error

	// Now stamps recorded history; defaults to time.Now.
	Now func() time.Time
	// BeforeHistory runs at the start of FetchHistory, outside the fake's lock.
	BeforeHistory func(channelID string)
}

var _ platform.Platform = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		history: make(map[string][]domain.TicketMessage),
		roles:   make(map[string]map[string]bool),
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *Fake) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *Fake) CreateThread(_ context.Context, parentChannelID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateThread != nil {
		return "", f.FailCreateThread
	}
	id := f.nextID("thread")
	f.Threads = append(f.Threads, Thread{ID: id, ParentID: parentChannelID, Name: name})
	return id, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend != nil {
		return "", f.FailSend
	}
	if err := f.FailSendTo[channelID]; err != nil {
		return "", err
	}
	id := f.nextID("msg")
	f.Sent = append(f.Sent, SentMessage{ID: id, ChannelID: channelID, Message: msg})
	content := msg.Content
	if content == "" && len(msg.Embeds) > 0 {
		content = msg.Embeds[0].Title
	}
	f.history[channelID] = append(f.history[channelID], domain.TicketMessage{
		ID: id, AuthorID: BotID, AuthorName: "Ticket Bot", Content: content, CreatedAt: f.now(),
	})
	return id, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, SentMessage{ID: messageID, ChannelID: channelID, Message: msg})
	return nil
}

func (f *Fake) FetchHistory(_ context.Context, channelID string) ([]domain.TicketMessage, error) {
	if f.BeforeHistory != nil {
		f.BeforeHistory(channelID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailHistory != nil {
		return nil, f.FailHistory
	}
	out := make([]domain.TicketMessage, len(f.history[channelID]))
	copy(out, f.history[channelID])
	return out, nil
}

func (f *Fake) SetCategoryPermission(_ context.Context, categoryID, userID string, allowView bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPermission != nil {
		return f.FailPermission
	}
	f.Permissions = append(f.Permissions, PermissionChange{CategoryID: categoryID, UserID: userID, AllowView: allowView})
	return nil
}

func (f *Fake) AddRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAddRole != nil {
		return f.FailAddRole
	}
	if f.roles[userID] == nil {
		f.roles[userID] = make(map[string]bool)
	}
	f.roles[userID][roleID] = true
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRemoveRole != nil {
		return f.FailRemoveRole
	}
	delete(f.roles[userID], roleID)
	return nil
}

func (f *Fake) HasRole(_ context.Context, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID][roleID], nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return f.FailDelete
	}
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *Fake) ArchiveThread(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailArchive != nil {
		return f.FailArchive
	}
	f.Archived = append(f.Archived, channelID)
	return nil
}

func (f *Fake) SendDM(_ context.Context, userID string, msg platform.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDM != nil {
		return f.FailDM
	}
	f.DMs = append(f.DMs, DM{UserID: userID, Message: msg})
	return nil
}

// PostUserMessage appends a user-authored message to a channel's history.
func (f *Fake) PostUserMessage(channelID, userID, name, content string, attachments ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[channelID] = append(f.history[channelID], domain.TicketMessage{
		ID: f.nextID("msg"), AuthorID: userID, AuthorName: name, Content: content,
		Attachments: attachments, CreatedAt: f.now(),
	})
}

// HoldsRole reports the fake's current role state.
func (f *Fake) HoldsRole(userID, roleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID][roleID]
}

// CategoryVisible returns the user's last recorded category permission; users
// with no overwrite can see the category.
func (f *Fake) CategoryVisible(categoryID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Permissions) - 1; i >= 0; i-- {
		p := f.Permissions[i]
		if p.CategoryID == categoryID && p.UserID == userID {
			return p.AllowView
		}
	}
	return true
}

// SentTo returns the messages sent to a channel.
func (f *Fake) SentTo(channelID string) []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SentMessage
	for _, m := range f.Sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// DMsTo returns the direct messages sent to a user.
func (f *Fake) DMsTo(userID string) []DM {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DM
	for _, dm := range f.DMs {
		if dm.UserID == userID {
			out = append(out, dm)
		}
	}
	return out
}

// ThreadCount returns how many threads were created.
func (f *Fake) ThreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Threads)
}
