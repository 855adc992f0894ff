package buyer

import "sync"

// Turn is one exchanged message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Conversation is the per-session chat state: the ordered history of turns
// plus the last referenced service id, used to resolve a bare "yes". It
// lives only for the process lifetime and is owned by the session that
// created it; for multi-instance deployment this would move to a keyed
// external store.
type Conversation struct {
	Turns         []Turn
	LastServiceID uint64
}

// Append records a user/model exchange.
func (c *Conversation) Append(userText, modelText string) {
	c.Turns = append(c.Turns,
		Turn{Role: "user", Text: userText},
		Turn{Role: "model", Text: modelText},
	)
}

// Sessions hands out per-session conversations. Each conversation is
// single-threaded from its session's perspective; the lock only guards the
// map itself.
type Sessions struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

// NewSessions returns an empty session store.
func NewSessions() *Sessions {
	return &Sessions{convs: make(map[string]*Conversation)}
}

// Get returns the conversation for a session id, creating it on first use.
func (s *Sessions) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		conv = &Conversation{}
		s.convs[id] = conv
	}
	return conv
}
