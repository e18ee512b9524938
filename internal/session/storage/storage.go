// Package storage persists the session record across client restarts.
//
// The record mirrors the web client's "auth-storage" entry: a single durable
// blob holding user, token, refreshToken, and isAuthenticated, written on
// every session mutation and read once at startup.
package storage

import (
	"errors"

	"aray-forum/client/internal/session/domain"
)

// ErrNotFound is returned by Load when no record has been persisted.
var ErrNotFound = errors.New("session record not found")

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 1

// Record is the persisted session state, versioned for forward compatibility.
type Record struct {
	Version         int          `json:"version"`
	User            *domain.User `json:"user"`
	Token           string       `json:"token"`
	RefreshToken    string       `json:"refresh_token"`
	IsAuthenticated bool         `json:"is_authenticated"`
}

// FromSession builds a persistable record from a session.
func FromSession(s domain.Session) *Record {
	return &Record{
		Version:         CurrentVersion,
		User:            s.User,
		Token:           s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

// Session converts the record back into a session.
func (r *Record) Session() domain.Session {
	return domain.Session{
		User:            r.User,
		AccessToken:     r.Token,
		RefreshToken:    r.RefreshToken,
		IsAuthenticated: r.IsAuthenticated,
	}
}

// Store defines durable persistence for the single session record.
type Store interface {
	Load() (*Record, error)
	Save(r *Record) error
	Clear() error
}
