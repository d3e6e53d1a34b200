package pairgate

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrAuthorizationNotFound is returned when no live record exists for a
	// code. An expired record that was already evicted reports the same.
	ErrAuthorizationNotFound = errors.New("pending authorization not found")
	// ErrAuthorizationExpired is returned when the record was present but
	// past its deadline; detection evicts it.
	ErrAuthorizationExpired = errors.New("pending authorization expired")
	// ErrAuthorizationPending is returned by TakeByDeviceCode while the user
	// has not yet approved the request.
	ErrAuthorizationPending = errors.New("authorization pending")
)

// PendingAuthorization is an in-flight pairing handshake, keyed by user code.
type PendingAuthorization struct {
	UserCode            string    `json:"user_code"`
	AuthCode            string    `json:"auth_code,omitempty"`
	DeviceCode          string    `json:"device_code,omitempty"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri,omitempty"`
	State               string    `json:"state,omitempty"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Authorized          bool      `json:"authorized"`
	AuthorizedAt        time.Time `json:"authorized_at,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// IsExpired reports whether the record is past its deadline.
func (a *PendingAuthorization) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// AuthorizationStore owns every in-flight pairing handshake. All check-then-
// mutate sequences run under a single lock so concurrent confirmations and
// redemptions observe consistent state. Expired records are evicted lazily on
// access and periodically by the sweeper.
type AuthorizationStore struct {
	mu      sync.RWMutex
	records map[string]PendingAuthorization

	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// NewAuthorizationStore creates the store and starts the background sweeper.
func NewAuthorizationStore(sweepInterval time.Duration) *AuthorizationStore {
	s := &AuthorizationStore{
		records:       make(map[string]PendingAuthorization),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// Put stores a pending authorization under its user code. Overwriting a live
// record means the short code space collided; tolerated, but logged.
func (s *AuthorizationStore) Put(auth PendingAuthorization) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.records[auth.UserCode]; exists && !prev.IsExpired() {
		log.Warn().
			Str("user_code", auth.UserCode).
			Msg("user code collision, overwriting live pending authorization")
	}
	s.records[auth.UserCode] = auth
}

// Get returns a copy of the record for the user code. An expired record is
// deleted as a side effect and reported as ErrAuthorizationExpired, so no
// caller ever observes an expired-but-present record.
func (s *AuthorizationStore) Get(userCode string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.records[userCode]
	if !ok {
		return nil, ErrAuthorizationNotFound
	}
	if auth.IsExpired() {
		delete(s.records, userCode)
		return nil, ErrAuthorizationExpired
	}
	return &auth, nil
}

// Authorize atomically flips the record to authorized and stamps
// AuthorizedAt. Authorizing an already-authorized record is a no-op reported
// via the second return value; the flag never reverses. The returned copy
// reflects the post-flip state.
func (s *AuthorizationStore) Authorize(userCode string) (*PendingAuthorization, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.records[userCode]
	if !ok {
		return nil, false, ErrAuthorizationNotFound
	}
	if auth.IsExpired() {
		delete(s.records, userCode)
		return nil, false, ErrAuthorizationExpired
	}
	already := auth.Authorized
	if !already {
		auth.Authorized = true
		auth.AuthorizedAt = time.Now()
		s.records[userCode] = auth
	}
	return &auth, already, nil
}

// TakeByAuthCode finds the live, authorized record whose auth code matches
// and deletes it in the same critical section, so a race between two
// redemptions yields exactly one winner. Unknown, unauthorized and expired
// codes are indistinguishable to the caller.
func (s *AuthorizationStore) TakeByAuthCode(code string) (*PendingAuthorization, error) {
	if code == "" {
		return nil, ErrAuthorizationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for userCode, auth := range s.records {
		if auth.AuthCode != code {
			continue
		}
		if auth.IsExpired() {
			delete(s.records, userCode)
			return nil, ErrAuthorizationNotFound
		}
		if !auth.Authorized {
			return nil, ErrAuthorizationNotFound
		}
		delete(s.records, userCode)
		return &auth, nil
	}
	return nil, ErrAuthorizationNotFound
}

// TakeByDeviceCode finds the record whose device code matches. A pending
// record is left in place and reported as ErrAuthorizationPending so the
// client keeps polling. An authorized-but-expired record is evicted and
// reported as ErrAuthorizationExpired. A live authorized record is deleted
// and returned.
func (s *AuthorizationStore) TakeByDeviceCode(deviceCode string) (*PendingAuthorization, error) {
	if deviceCode == "" {
		return nil, ErrAuthorizationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for userCode, auth := range s.records {
		if auth.DeviceCode != deviceCode {
			continue
		}
		if !auth.Authorized {
			if auth.IsExpired() {
				delete(s.records, userCode)
				return nil, ErrAuthorizationNotFound
			}
			return nil, ErrAuthorizationPending
		}
		if auth.IsExpired() {
			delete(s.records, userCode)
			return nil, ErrAuthorizationExpired
		}
		delete(s.records, userCode)
		return &auth, nil
	}
	return nil, ErrAuthorizationNotFound
}

// Delete removes a record regardless of state.
func (s *AuthorizationStore) Delete(userCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userCode)
}

// Len reports the number of stored records, including not-yet-swept expired ones.
func (s *AuthorizationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns copies of all live records, for introspection endpoints.
func (s *AuthorizationStore) Snapshot() []PendingAuthorization {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PendingAuthorization, 0, len(s.records))
	for _, auth := range s.records {
		if auth.IsExpired() {
			continue
		}
		out = append(out, auth)
	}
	return out
}

// Sweep deletes every record past its deadline. It runs on the sweeper
// schedule and bounds memory growth from flows nobody polls again.
func (s *AuthorizationStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for userCode, auth := range s.records {
		if now.After(auth.ExpiresAt) {
			delete(s.records, userCode)
			log.Debug().
				Str("user_code", userCode).
				Msg("swept expired pending authorization")
		}
	}
}

func (s *AuthorizationStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.done:
			return
		}
	}
}

// Close stops the sweeper goroutine.
func (s *AuthorizationStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
