package auth

import "sync"

// User is one allowlisted caller. DisplayName is optional metadata
// carried alongside the opaque ID.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID string) error
}

// Service gates access by user ID. An empty allowlist admits everyone,
// which matches the system's current no-enforcement posture.
type Service struct {
	mu           sync.RWMutex
	repo         Repository
	allowedUsers map[string]User
}

func NewWithRepo(repo Repository, initial []string) (*Service, error) {
	s := &Service{repo: repo, allowedUsers: make(map[string]User)}
	// preload from repo
	if repo != nil {
		users, err := repo.LoadAll()
		if err == nil {
			for _, u := range users {
				s.allowedUsers[u.ID] = u
			}
		}
	}
	// merge initial IDs (from env) without display names
	for _, id := range initial {
		if _, ok := s.allowedUsers[id]; !ok {
			s.allowedUsers[id] = User{ID: id}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.allowedUsers) == 0 {
		return true
	}
	_, ok := s.allowedUsers[userID]
	return ok
}

func (s *Service) Upsert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedUsers[user.ID] = user
	if s.repo != nil {
		return s.repo.Upsert(user)
	}
	return nil
}

func (s *Service) Remove(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowedUsers, userID)
	if s.repo != nil {
		return s.repo.Remove(userID)
	}
	return nil
}

func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.allowedUsers))
	for _, u := range s.allowedUsers {
		out = append(out, u)
	}
	return out
}
