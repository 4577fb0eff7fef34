package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound сессия отсутствует в хранилище
var ErrSessionNotFound = errors.New("session not found")

// Repository определяет доступ к персистентному хранилищу сессий (Domain Layer)
type Repository interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

// CacheStore определяет опциональный кэш сессий (Redis)
type CacheStore interface {
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
