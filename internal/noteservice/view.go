package noteservice

import (
	"time"

	"github.com/starford/pathnote/internal/models"
)

// Cache TTL bounds. A cached view lives ViewTTLStep per stored view,
// clamped to [MinCacheTTL, MaxCacheTTL].
const (
	ViewTTLStep  = 180 * time.Second
	MinCacheTTL  = 300 * time.Second
	MaxCacheTTL  = 86400 * time.Second
	MinCacheView = 2
)

// NoteView is the public JSON representation of a note. Read-locked notes
// are rendered without content.
type NoteView struct {
	Exists           bool            `json:"exists"`
	Path             string          `json:"path"`
	Content          *string         `json:"content,omitempty"`
	IsLocked         bool            `json:"is_locked"`
	LockType         models.LockType `json:"lock_type,omitempty"`
	RequiresPassword bool            `json:"requires_password,omitempty"`
	ViewCount        int64           `json:"view_count,omitempty"`
	CreatedAt        *time.Time      `json:"created_at,omitempty"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

// CacheKey is the cache key of the view of path.
func CacheKey(path string) string {
	return "note:" + path
}

// CacheTTL returns the cache lifetime for a note whose stored view count,
// before the current read, is viewCount.
func CacheTTL(viewCount int64) time.Duration {
	ttl := time.Duration(viewCount) * ViewTTLStep
	if viewCount > int64(MaxCacheTTL/ViewTTLStep) {
		ttl = MaxCacheTTL
	}
	return min(MaxCacheTTL, max(MinCacheTTL, ttl))
}

func missingView(path string) *NoteView {
	return &NoteView{Exists: false, Path: path}
}

// challengeView describes a read-locked note without leaking its content.
func challengeView(n *models.Note) *NoteView {
	return &NoteView{
		Exists:           true,
		Path:             n.Path,
		IsLocked:         true,
		LockType:         n.LockType,
		RequiresPassword: true,
	}
}

// readableView renders the full note. viewCount is the count reported to
// the client.
func readableView(n *models.Note, viewCount int64) *NoteView {
	c := n.Content
	created, updated := n.CreatedAt, n.UpdatedAt
	return &NoteView{
		Exists:    true,
		Path:      n.Path,
		Content:   &c,
		IsLocked:  n.IsLocked,
		LockType:  n.LockType,
		ViewCount: viewCount,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
}
