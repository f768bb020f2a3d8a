package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fitness-crm/utils"
)

// SessionStore keeps server-side sessions in Redis so that a signed token
// can be revoked before it expires.
type SessionStore struct {
	cache utils.RedisClient
	ttl   time.Duration
}

func NewSessionStore(cache utils.RedisClient, idleTTL time.Duration) *SessionStore {
	return &SessionStore{cache: cache, ttl: idleTTL}
}

// session is the record stored under a session id.
type session struct {
	UserID    uint      `json:"user_id"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(id string) string {
	return "session:" + id
}

func userSessionsKey(userID uint) string {
	return "user_sessions:" + strconv.FormatUint(uint64(userID), 10)
}

// Create opens a session for userID signed in from ip.
func (s *SessionStore) Create(ctx context.Context, userID uint, ip string) (string, error) {
	id := uuid.NewString()

	record, err := json.Marshal(session{UserID: userID, IP: ip, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.SetToCache(ctx, sessionKey(id), string(record), s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if err := s.cache.AddToSet(ctx, userSessionsKey(userID), id, s.ttl); err != nil {
		return "", fmt.Errorf("index session: %w", err)
	}

	return id, nil
}

// Touch returns the session's user and pushes its idle expiry forward.
func (s *SessionStore) Touch(ctx context.Context, id string) (uint, error) {
	val, err := s.cache.GetFromCache(ctx, sessionKey(id))
	if utils.IsCacheMiss(err) {
		return 0, ErrSessionExpired
	}
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}

	var record session
	if err := json.Unmarshal([]byte(val), &record); err != nil || record.UserID == 0 {
		return 0, ErrSessionExpired
	}

	if err := s.cache.Expire(ctx, sessionKey(id), s.ttl); err != nil {
		return 0, fmt.Errorf("refresh session: %w", err)
	}
	_ = s.cache.Expire(ctx, userSessionsKey(record.UserID), s.ttl)

	return record.UserID, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string, userID uint) error {
	if err := s.cache.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return s.cache.RemoveFromSet(ctx, userSessionsKey(userID), id)
}

func (s *SessionStore) DeleteAll(ctx context.Context, userID uint) error {
	ids, err := s.cache.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	return s.cache.Delete(ctx, keys...)
}
