package transcript

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore persists one JSON document per user under dir. Every
// mutation rewrites the whole document through a temp file followed by
// an atomic rename, so readers and crashed writers never observe a
// partially written record. A lazily created per-user mutex serializes
// writers to the same user; distinct users never contend.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure transcript dir: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// path maps an opaque user ID to a file name. Percent-escaping keeps
// IDs with separators or dots from escaping the data directory.
func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, url.PathEscape(userID)+".json")
}

func (s *FileStore) AppendConversation(userID string, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, ErrEmptyConversation
	}
	conv := make(Conversation, len(msgs))
	copy(conv, msgs)

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(userID)
	if err != nil {
		return 0, err
	}
	doc.Chats = append(doc.Chats, conv)
	if err := s.save(userID, doc); err != nil {
		return 0, err
	}
	return len(doc.Chats) - 1, nil
}

func (s *FileStore) ListConversations(userID string) ([]Conversation, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return doc.Chats, nil
}

func (s *FileStore) SetMessageFeedback(userID string, conversationIndex, messageIndex int, feedback string) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.path(userID)); os.IsNotExist(err) {
		return false, nil
	}
	doc, err := s.load(userID)
	if err != nil {
		return false, err
	}
	if conversationIndex < 0 || conversationIndex >= len(doc.Chats) {
		return false, nil
	}
	conv := doc.Chats[conversationIndex]
	if messageIndex < 0 || messageIndex >= len(conv) {
		return false, nil
	}
	conv[messageIndex].Feedback = feedback
	if err := s.save(userID, doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) DeleteTranscript(userID string) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(userID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete transcript: %w", err)
	}
	return true, nil
}

// SweepExpired removes transcripts that have not been written for
// longer than the retention window and returns how many were removed.
func (s *FileStore) SweepExpired(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read transcript dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		userID, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		ok, err := s.DeleteTranscript(userID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) load(userID string) (document, error) {
	data, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		return document{UserID: userID}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("read transcript: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode transcript for %s: %w", userID, err)
	}
	if doc.UserID == "" {
		doc.UserID = userID
	}
	return doc, nil
}

func (s *FileStore) save(userID string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	f, err := os.CreateTemp(s.dir, url.PathEscape(userID)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmp, s.path(userID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}
