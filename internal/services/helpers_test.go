package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grantflow/backend/internal/authz"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

var (
	admin    = authz.User(1, "admin")
	owner    = authz.User(7, "user")
	stranger = authz.User(8, "user")
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id uint, role, email string) {
	t.Helper()
	u := &models.User{ID: id, Username: "user" + uuid.NewString()[:6], Role: role, Email: email, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// recorder is a Notifier that keeps what it was given.
type recorder struct {
	mu      sync.Mutex
	notices []lifecycle.Notice
}

func (r *recorder) Notify(_ context.Context, ns []lifecycle.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, ns...)
}

func (r *recorder) kinds() []contract.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contract.NoticeKind, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Kind
	}
	return out
}

func (r *recorder) last() lifecycle.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

func hasKind(ks []contract.NoticeKind, k contract.NoticeKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}
