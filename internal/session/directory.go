package session

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	// ErrSessionNotActive сессия найдена, но ее статус не active
	ErrSessionNotActive = errors.New("session is not active")
	// ErrRoleMismatch userID не совпадает с участником сессии для данной роли
	ErrRoleMismatch = errors.New("user does not match session role")
)

// Directory in-memory каталог активных сессий. Заполняется валидацией против
// персистентного хранилища при подключении клиента; после рестарта процесса
// восстанавливается лениво, по мере подключений.
type Directory struct {
	repository Repository
	cache      CacheStore // nil, если Redis-слой отключен

	mu             sync.RWMutex
	activeSessions map[string]*Session
}

// NewDirectory создает новый каталог сессий
func NewDirectory(repository Repository, cache CacheStore) *Directory {
	return &Directory{
		repository:     repository,
		cache:          cache,
		activeSessions: make(map[string]*Session),
	}
}

// ValidateAndRegister проверяет сессию против хранилища и авторизует клиента.
// Требования: status=active; для patient userID совпадает с PatientID,
// для doctor — с DoctorID. Любой провал не мутирует каталог.
func (d *Directory) ValidateAndRegister(ctx context.Context, sessionID, userID string, role Role) (*Session, error) {
	session, err := d.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != StatusActive {
		return nil, ErrSessionNotActive
	}

	switch role {
	case RolePatient:
		if session.PatientID != userID {
			return nil, ErrRoleMismatch
		}
	case RoleDoctor:
		if session.DoctorID != userID {
			return nil, ErrRoleMismatch
		}
	default:
		return nil, ErrRoleMismatch
	}

	d.mu.Lock()
	d.activeSessions[sessionID] = session
	d.mu.Unlock()

	if d.cache != nil {
		if err := d.cache.SetSession(ctx, session); err != nil {
			log.Printf("[WARN] Failed to cache session %s: %v", sessionID, err)
		}
	}

	log.Printf("[SESSION] Registered session %s (patient=%s doctor=%s)",
		sessionID, session.PatientID, session.DoctorID)
	return session, nil
}

// lookup ищет сессию: память → Redis → MySQL
func (d *Directory) lookup(ctx context.Context, sessionID string) (*Session, error) {
	d.mu.RLock()
	if session, ok := d.activeSessions[sessionID]; ok {
		d.mu.RUnlock()
		return session, nil
	}
	d.mu.RUnlock()

	if d.cache != nil {
		if session, err := d.cache.GetSession(ctx, sessionID); err == nil {
			return session, nil
		}
	}

	return d.repository.GetSession(ctx, sessionID)
}

// Get возвращает сессию из памяти, без обращения к хранилищу
func (d *Directory) Get(sessionID string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	session, ok := d.activeSessions[sessionID]
	return session, ok
}

// Active возвращает снапшот всех активных сессий
func (d *Directory) Active() []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sessions := make([]*Session, 0, len(d.activeSessions))
	for _, s := range d.activeSessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count возвращает число активных сессий
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.activeSessions)
}

// Remove удаляет сессию из памяти и кэша. No-op, если сессии нет.
func (d *Directory) Remove(ctx context.Context, sessionID string) {
	d.mu.Lock()
	delete(d.activeSessions, sessionID)
	d.mu.Unlock()

	if d.cache != nil {
		if err := d.cache.DeleteSession(ctx, sessionID); err != nil {
			log.Printf("[WARN] Failed to delete session %s from cache: %v", sessionID, err)
		}
	}
}
