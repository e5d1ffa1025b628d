package transcript

import "sync"

// MemoryStore keeps transcripts in memory only. It satisfies the same
// contract as FileStore minus durability and is handy for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string][]Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string][]Conversation)}
}

func (m *MemoryStore) AppendConversation(userID string, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, ErrEmptyConversation
	}
	conv := make(Conversation, len(msgs))
	copy(conv, msgs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = append(m.users[userID], conv)
	return len(m.users[userID]) - 1, nil
}

func (m *MemoryStore) ListConversations(userID string) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	convs := m.users[userID]
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		cp := make(Conversation, len(c))
		copy(cp, c)
		out = append(out, cp)
	}
	return out, nil
}

func (m *MemoryStore) SetMessageFeedback(userID string, conversationIndex, messageIndex int, feedback string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	convs, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	if conversationIndex < 0 || conversationIndex >= len(convs) {
		return false, nil
	}
	conv := convs[conversationIndex]
	if messageIndex < 0 || messageIndex >= len(conv) {
		return false, nil
	}
	conv[messageIndex].Feedback = feedback
	return true, nil
}

func (m *MemoryStore) DeleteTranscript(userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return false, nil
	}
	delete(m.users, userID)
	return true, nil
}
