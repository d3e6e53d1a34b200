package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrInvalidClientSecret = errors.New("invalid client secret")
)

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
	DeleteClient(ctx context.Context, clientID string) error
}

// InMemoryClientStore keeps registered clients in a mutex-guarded map.
type InMemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewInMemoryClientStore creates an empty client store.
func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{
		clients: make(map[string]Client),
	}
}

// CreateClient adds a client to the store.
func (s *InMemoryClientStore) CreateClient(_ context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = *client
	return nil
}

// GetClient retrieves a client by its ID.
func (s *InMemoryClientStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &client, nil
}

// ValidateClient checks the presented secret against the stored bcrypt hash.
func (s *InMemoryClientStore) ValidateClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(clientSecret)); err != nil {
		return nil, ErrInvalidClientSecret
	}
	return client, nil
}

// DeleteClient removes a client from the store.
func (s *InMemoryClientStore) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}

// RegistrationResult carries the one-time plaintext secret back to the caller.
type RegistrationResult struct {
	Client *Client
	Secret string
}

// Service handles dynamic client registration.
type Service struct {
	store ClientStore
}

// NewService creates a registration service over the given store.
func NewService(store ClientStore) *Service {
	return &Service{store: store}
}

// Register mints a client ID and secret, stores the client with the secret
// bcrypt-hashed, and returns the plaintext secret exactly once.
func (s *Service) Register(ctx context.Context, name string, redirectURIs, scopes []string) (*RegistrationResult, error) {
	secret := NewClientSecret()
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	client := &Client{
		ID:            uuid.NewString(),
		Secret:        string(hashed),
		Type:          Public,
		Name:          name,
		RedirectURIs:  redirectURIs,
		AllowedScopes: scopes,
		CreatedAt:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	return &RegistrationResult{Client: client, Secret: secret}, nil
}
