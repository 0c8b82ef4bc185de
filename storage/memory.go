package storage

import (
	"context"
	"sync"
	"time"
)

type MemoryStorage struct {
	users map[int64]*User
	mutex sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[int64]*User),
	}
}

func (m *MemoryStorage) GetOrCreate(_ context.Context, chatID int64) (*User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.getOrCreateLocked(chatID), nil
}

func (m *MemoryStorage) getOrCreateLocked(chatID int64) *User {
	if user, ok := m.users[chatID]; ok {
		return user
	}
	user := &User{
		ChatID:    chatID,
		Unit:      UnitCelsius,
		CreatedAt: time.Now(),
	}
	m.users[chatID] = user
	return user
}

func (m *MemoryStorage) SavedLocation(_ context.Context, chatID int64) (*Location, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	user, ok := m.users[chatID]
	if !ok || user.Location == nil {
		return nil, nil
	}
	loc := *user.Location
	return &loc, nil
}

func (m *MemoryStorage) SetSavedLocation(_ context.Context, chatID int64, loc Location) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	user := m.getOrCreateLocked(chatID)
	user.Location = &loc
	return nil
}

func (m *MemoryStorage) Unit(_ context.Context, chatID int64) (Unit, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if user, ok := m.users[chatID]; ok {
		return user.Unit, nil
	}
	return UnitCelsius, nil
}

func (m *MemoryStorage) ToggleUnit(_ context.Context, chatID int64) (Unit, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	user := m.getOrCreateLocked(chatID)
	user.Unit = user.Unit.Flip()
	return user.Unit, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
