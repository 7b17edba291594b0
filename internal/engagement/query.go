package engagement

import (
	"time"

	"github.com/google/uuid"
	"github.com/pulselive/backend/internal/models"
)

const (
	defaultChatLimit = 50
	maxChatLimit     = 200
)

// ChatQuery bundles the optional chat list filters. All supplied filters
// are AND-composed; zero values mean "no filter".
type ChatQuery struct {
	Since   *time.Time
	Until   *time.Time
	UserID  *uuid.UUID
	Type    *models.ChatType
	Limit   int
	Offset  int
	SortAsc bool
}

func (q ChatQuery) normalize() ChatQuery {
	if q.Limit <= 0 {
		q.Limit = defaultChatLimit
	}
	if q.Limit > maxChatLimit {
		q.Limit = maxChatLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Matches reports whether a message satisfies every supplied filter.
// Shared by the in-memory store used in tests.
func (q ChatQuery) Matches(m models.ChatMessage) bool {
	if q.Since != nil && m.CreatedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !m.CreatedAt.Before(*q.Until) {
		return false
	}
	if q.UserID != nil && m.UserID != *q.UserID {
		return false
	}
	if q.Type != nil && m.Type != *q.Type {
		return false
	}
	return true
}
