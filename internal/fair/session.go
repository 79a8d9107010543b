package fair

import "sync"

// Session is one identity's seed commitment. The seed stays secret until it
// is rotated (or returned alongside a draw for verification); the nonce
// monotonically counts completed draws under this seed.
type Session struct {
	ServerSeed string
	SeedHash   string
	Nonce      uint64
}

// Draw is the outcome of one evaluation against a committed seed. The server
// seed is included so the caller can decide when to reveal it.
type Draw struct {
	Result     uint32
	ServerSeed string
	Nonce      uint64
}

// SessionStore holds per-identity seed sessions. All nonce increments are
// serialized under the store lock.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Commit rotates the identity's server seed and returns the new commitment
// hash plus the previous seed (empty on first commitment) so it can be
// revealed for verification of past draws. The nonce resets to zero.
func (s *SessionStore) Commit(identity string) (hash, revealedSeed string, err error) {
	seed, err := GenerateServerSeed()
	if err != nil {
		return "", "", err
	}
	hash = HashSeed(seed)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[identity]; ok {
		revealedSeed = prev.ServerSeed
	}
	s.sessions[identity] = &Session{ServerSeed: seed, SeedHash: hash}
	return hash, revealedSeed, nil
}

// Evaluate derives the result for the identity's current nonce and then
// increments it. Many draws share one seed; only an explicit Commit rotates it.
func (s *SessionStore) Evaluate(identity, clientSeed string) (Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[identity]
	if !ok {
		return Draw{}, ErrNoSession
	}

	d := Draw{
		Result:     DeriveResult(sess.ServerSeed, clientSeed, sess.Nonce),
		ServerSeed: sess.ServerSeed,
		Nonce:      sess.Nonce,
	}
	sess.Nonce++
	return d, nil
}

// Active reports whether the identity has a live commitment.
func (s *SessionStore) Active(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[identity]
	return ok
}
