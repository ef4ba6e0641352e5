// Package provider adapts the hosted realtime vendor that supplies the video
// call and chat channel behind every session. The vendor is an opaque remote
// service; this package only speaks its REST control surface and never
// implements the realtime wire protocols themselves.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers transport failures, timeouts and 5xx responses;
	// the request may succeed if repeated.
	ErrUnavailable = errors.New("realtime provider unavailable")

	// ErrRejected covers definitive refusals (4xx); repeating the same
	// request will not help.
	ErrRejected = errors.New("realtime provider rejected the request")
)

// CallMetadata tags the remote call resource with the session it belongs to.
type CallMetadata struct {
	Problem    string `json:"problem"`
	Difficulty string `json:"difficulty"`
	SessionID  string `json:"session_id"`
}

// UserProfile mirrors the fields the vendor keeps per user. ID is the user's
// external identity, not the local record id.
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"image,omitempty"`
}

// Client is the capability object the lifecycle coordinator holds for the
// vendor. Every method can fail with ErrUnavailable or ErrRejected (wrapped
// with detail); callers treat both uniformly for rollback decisions.
type Client interface {
	CreateCall(ctx context.Context, callID string, meta CallMetadata, creatorID string) error
	DeleteCall(ctx context.Context, callID string) error
	CreateChannel(ctx context.Context, callID, name string, members []string) error
	AddChannelMember(ctx context.Context, callID, memberID string) error
	DeleteChannel(ctx context.Context, callID string) error
	UpsertUser(ctx context.Context, profile UserProfile) error
	DeleteUser(ctx context.Context, userID string) error
}
