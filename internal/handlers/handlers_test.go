package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/internal/utils"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handlers-test")
}

type discard struct{}

func (discard) Notify(context.Context, []lifecycle.Notice) {}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	admin  string
	user   string
	other  string
}

func newTestServer(t *testing.T) *testServer {
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
	services.InitSystemLogger(db)
	t.Cleanup(func() { services.InitSystemLogger(nil) })

	for _, u := range []models.User{
		{ID: 1, Username: "root", Role: "admin", IsActive: true},
		{ID: 7, Username: "alice", Role: "user", IsActive: true},
		{ID: 8, Username: "bob", Role: "user", IsActive: true},
	} {
		u := u
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	proposals := NewProposalHandler(services.NewProposalService(db, discard{}, config.FundingConfig{}))
	rfws := NewRFWHandler(services.NewRFWService(db, discard{}))
	tags := NewTagHandler(services.NewTagService(db))
	auth := NewAuthHandler(services.NewAuthService(db, &config.JWTConfig{ExpireHour: 1}))

	r := gin.New()
	r.GET("/health", NewHealthHandler(db, services.NewSyncQueue(), services.NewNoticeHub()).CheckHealth)
	api := r.Group("/api/v1")
	public := api.Group("", middleware.OptionalAuth())
	public.GET("/proposals/:id", proposals.Get)
	public.GET("/rfws/:id", rfws.Get)
	public.GET("/tags", tags.List)
	api.GET("/auth/me", middleware.AuthRequired(), auth.GetCurrentUser)

	member := api.Group("", middleware.AuthRequired(), middleware.AuditLog())
	member.POST("/proposals/drafts", proposals.CreateDraft)
	member.PUT("/proposals/:id", proposals.UpdateDraft)
	member.PUT("/proposals/:id/submit_for_approval", proposals.Submit)
	member.PUT("/proposals/:id/approve", proposals.Approve)
	member.PUT("/proposals/:id/publish", proposals.Publish)
	member.PUT("/proposals/:id/funded", proposals.MarkFunded)
	member.PUT("/proposals/:id/cancel", proposals.Cancel)
	member.PUT("/proposals/:id/follow", proposals.Follow)
	member.PUT("/proposals/:id/milestone/:msId/request", proposals.RequestPayout)
	member.PUT("/proposals/:id/milestone/:msId/accept", proposals.AcceptPayout)
	member.PUT("/proposals/:id/milestone/:msId/paid", proposals.MarkPaid)
	member.POST("/rfws/:id/worker/request", rfws.RequestWork)
	member.PUT("/rfws/:id/worker/:workerId/accept", rfws.ReviewWorker)
	member.POST("/rfws/:id/milestone/:msId/worker/:workerId", rfws.Claim)
	member.PUT("/rfws/:id/milestone/:msId/accept/:claimId", rfws.ReviewClaim)

	admin := api.Group("", middleware.AuthRequired(), middleware.AuditLog(), middleware.AdminRequired())
	admin.POST("/rfws", rfws.Create)
	admin.PUT("/rfws/:id/publish", rfws.Publish)
	admin.PUT("/tags", tags.Upsert)
	admin.GET("/admin/stats", NewDashboardHandler(services.NewDashboardService(db)).GetStats)

	token := func(id uint, name, role string) string {
		tok, err := utils.GenerateToken(id, name, role, 1)
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}
	return &testServer{
		t:      t,
		db:     db,
		router: r,
		admin:  token(1, "root", "admin"),
		user:   token(7, "alice", "user"),
		other:  token(8, "bob", "user"),
	}
}

// do sends a JSON request and decodes the envelope. token may be empty.
func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

// must fails the test unless the request answered want, then decodes data into out.
func (s *testServer) must(want int, method, path, token string, body, out interface{}) {
	s.t.Helper()
	code, env := s.do(method, path, token, body)
	if code != want {
		s.t.Fatalf("%s %s = %d (%s: %s), expected %d", method, path, code, env.Kind, env.Message, want)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			s.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
}

func draftBody() map[string]interface{} {
	next := time.Now().AddDate(0, 1, 0)
	later := time.Now().AddDate(0, 3, 0)
	return map[string]interface{}{
		"title":    "Hoon LSP",
		"brief":    "Language server for Hoon",
		"content":  "Full plan",
		"category": "DEV_TOOL",
		"target":   "10",
		"milestones": []map[string]interface{}{
			{"title": "Parser", "content": "parse it", "payoutAmount": "5", "dateEstimated": next},
			{"title": "Server", "content": "serve it", "payoutAmount": "5", "dateEstimated": later},
		},
	}
}

func (s *testServer) liveProposal() *models.Proposal {
	s.t.Helper()
	var p models.Proposal
	s.must(http.StatusCreated, "POST", "/api/v1/proposals/drafts", s.user, nil, &p)
	path := "/api/v1/proposals/" + itoa(p.ID)
	s.must(http.StatusOK, "PUT", path, s.user, draftBody(), nil)
	s.must(http.StatusOK, "PUT", path+"/submit_for_approval", s.user, nil, nil)
	s.must(http.StatusOK, "PUT", path+"/approve", s.admin, map[string]interface{}{"isApprove": true}, nil)
	s.must(http.StatusOK, "PUT", path+"/publish", s.user, nil, &p)
	return &p
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
