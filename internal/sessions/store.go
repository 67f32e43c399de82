// Package sessions implements the Session Store: canonical session-key
// construction, per-peer transcript persistence, and an in-memory store
// for tests alongside a durable file-backed store for production.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// ErrNotFound is returned when a session lookup finds nothing.
var ErrNotFound = errors.New("sessions: not found")

// Store is the interface for session persistence.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, key string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, key string) error

	GetOrCreate(ctx context.Context, key, agentID, channel, peerID string) (*models.Session, error)
	List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error)

	AppendMessage(ctx context.Context, key string, msg models.Message) error
	GetHistory(ctx context.Context, key string, limit int) ([]models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Channel string
	Limit   int
	Offset  int
}

// BuildKey constructs the canonical session key grammar from spec.md §4.4:
//
//	agent:<agentId>:<channel>:<peerId>   (per-peer conversation)
//	agent:<agentId>:main                 (the agent's default session)
//
// peerID may be empty only when channel is also empty, producing the
// 3-segment "main" form.
func BuildKey(agentID, channel, peerID string) string {
	if channel == "" && peerID == "" {
		return fmt.Sprintf("agent:%s:main", agentID)
	}
	return fmt.Sprintf("agent:%s:%s:%s", agentID, channel, peerID)
}

// ParseKey decomposes a session key produced by BuildKey. ok is false if
// key does not match either the 3-segment or 4-segment grammar.
func ParseKey(key string) (agentID, channel, peerID string, ok bool) {
	parts := strings.Split(key, ":")
	switch len(parts) {
	case 3:
		if parts[0] != "agent" || parts[2] != "main" {
			return "", "", "", false
		}
		return parts[1], "", "", true
	case 4:
		if parts[0] != "agent" {
			return "", "", "", false
		}
		return parts[1], parts[2], parts[3], true
	default:
		return "", "", "", false
	}
}

// sanitizeKeyForFilename maps a session key to a filesystem-safe name by
// replacing the colon separators with underscores. Segments may
// themselves contain underscores, so two distinct keys can map to the
// same name (for example "agent:a_b:main" and "agent:a:b:main").
func sanitizeKeyForFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
