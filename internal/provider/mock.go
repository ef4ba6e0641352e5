package provider

import (
	"context"
	"sync"
)

// Mock is an in-process Client used by tests and local development. It tracks
// the resources that would exist remotely and lets tests inject failures per
// operation.
type Mock struct {
	mu       sync.Mutex
	calls    map[string]CallMetadata
	channels map[string][]string
	users    map[string]UserProfile

	FailCreateCall    error
	FailDeleteCall    error
	FailCreateChannel error
	FailAddMember     error
	FailDeleteChannel error
	FailUpsertUser    error
	FailDeleteUser    error
}

func NewMock() *Mock {
	return &Mock{
		calls:    make(map[string]CallMetadata),
		channels: make(map[string][]string),
		users:    make(map[string]UserProfile),
	}
}

func (m *Mock) CreateCall(_ context.Context, callID string, meta CallMetadata, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateCall != nil {
		return m.FailCreateCall
	}
	m.calls[callID] = meta
	return nil
}

func (m *Mock) DeleteCall(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeleteCall != nil {
		return m.FailDeleteCall
	}
	delete(m.calls, callID)
	return nil
}

func (m *Mock) CreateChannel(_ context.Context, callID, _ string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateChannel != nil {
		return m.FailCreateChannel
	}
	m.channels[callID] = append([]string(nil), members...)
	return nil
}

func (m *Mock) AddChannelMember(_ context.Context, callID, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAddMember != nil {
		return m.FailAddMember
	}
	m.channels[callID] = append(m.channels[callID], memberID)
	return nil
}

func (m *Mock) DeleteChannel(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeleteChannel != nil {
		return m.FailDeleteChannel
	}
	delete(m.channels, callID)
	return nil
}

func (m *Mock) UpsertUser(_ context.Context, profile UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpsertUser != nil {
		return m.FailUpsertUser
	}
	m.users[profile.ID] = profile
	return nil
}

func (m *Mock) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeleteUser != nil {
		return m.FailDeleteUser
	}
	delete(m.users, userID)
	return nil
}

// HasCall reports whether the call resource exists.
func (m *Mock) HasCall(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.calls[callID]
	return ok
}

// HasChannel reports whether the chat channel exists.
func (m *Mock) HasChannel(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[callID]
	return ok
}

// ChannelMembers returns the channel's member identities in add order.
func (m *Mock) ChannelMembers(callID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.channels[callID]...)
}

// HasUser reports whether the user profile was upserted.
func (m *Mock) HasUser(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok
}
