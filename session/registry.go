package session

import "sync"

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// Registry owns the live sessions, keyed by chat id, and a lock per chat
// that serializes transitions for that chat.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]*chatLock
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]*chatLock),
	}
}

// Lock blocks until the caller owns chatID and returns the release func.
// Locks for idle chats are dropped so the map does not grow with every chat seen.
func (r *Registry) Lock(chatID int64) func() {
	r.mu.Lock()
	l, ok := r.locks[chatID]
	if !ok {
		l = &chatLock{}
		r.locks[chatID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, chatID)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.ChatID] = s
	r.mu.Unlock()
}

func (r *Registry) Delete(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
