package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent [][]string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type fakeEvents struct {
	keys []string
}

func (e *fakeEvents) Publish(_ context.Context, routingKey string, _ any) error {
	e.keys = append(e.keys, routingKey)
	return nil
}

func (e *fakeEvents) Close() {}

// memDedup is an in-memory Deduper.
type memDedup struct {
	seen map[string]bool
}

func (d *memDedup) AcquireOnce(_ context.Context, key string) bool {
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memDedup) Release(_ context.Context, key string) {
	delete(d.seen, key)
}

func TestNoticeDispatcher_Recipients(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, 1, "admin", "admin@example.com")
	seedUser(t, db, 2, "admin", "")
	seedUser(t, db, 7, "user", "owner@example.com")
	seedUser(t, db, 8, "user", "fan@example.com")
	if err := db.Create(&models.ProposalFollower{ProposalID: 3, UserID: 8}).Error; err != nil {
		t.Fatal(err)
	}
	d := NewNoticeDispatcher(db, &fakeMailer{}, nil, nil, "")

	tests := []struct {
		name   string
		notice lifecycle.Notice
		want   []uint
	}{
		{"admins", lifecycle.Notice{Kind: contract.NoticeAdminPayout}, []uint{1, 2}},
		{"followers", lifecycle.Notice{Kind: contract.NoticeFollowedProposalMilestone, ProposalID: 3}, []uint{8}},
		{"team", lifecycle.Notice{Kind: contract.NoticeMilestonePaid, Recipients: []uint{7}}, []uint{7}},
		{"worker", lifecycle.Notice{Kind: contract.NoticeWorkerApproved, Recipients: []uint{8}}, []uint{8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Recipients(context.Background(), tt.notice)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Recipients() = %v, expected %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Recipients()[%d] = %d, expected %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNoticeDispatcher_Process(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, 1, "admin", "admin@example.com")
	seedUser(t, db, 2, "admin", "")

	mailer := &fakeMailer{}
	events := &fakeEvents{}
	dedup := &memDedup{seen: map[string]bool{}}
	d := NewNoticeDispatcher(db, mailer, events, dedup, "https://grants.example.com/")

	task := &NoticeTask{ID: "t1", Notice: lifecycle.Notice{Kind: contract.NoticeAdminApproval, ProposalID: 3}}
	for i := 0; i < 2; i++ {
		if err := d.Process(context.Background(), task); err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("mails sent = %d, expected 1 after de-duplication", len(mailer.sent))
	}
	if to := mailer.sent[0]; len(to) != 1 || to[0] != "admin@example.com" {
		t.Errorf("recipients = %v, users without email must be skipped", to)
	}
	if len(events.keys) != 1 || events.keys[0] != "notice.admin_approval" {
		t.Errorf("published events = %v", events.keys)
	}
}

func TestNoticeDispatcher_ProcessFailureReleasesKey(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, 1, "admin", "admin@example.com")
	mailer := &fakeMailer{err: errors.New("smtp down")}
	dedup := &memDedup{seen: map[string]bool{}}
	d := NewNoticeDispatcher(db, mailer, nil, dedup, "")

	task := &NoticeTask{Notice: lifecycle.Notice{Kind: contract.NoticeAdminPayout, ProposalID: 3, MilestoneID: 4}}
	if err := d.Process(context.Background(), task); err == nil {
		t.Fatal("expected delivery error")
	}
	if len(dedup.seen) != 0 {
		t.Error("failed delivery kept its de-dup key")
	}

	mailer.err = nil
	if err := d.Process(context.Background(), task); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Errorf("retry was not delivered")
	}
}

func TestNoticeDispatcher_RepeatedTransitionIsDelivered(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, 1, "admin", "admin@example.com")
	mailer := &fakeMailer{}
	d := NewNoticeDispatcher(db, mailer, nil, &memDedup{seen: map[string]bool{}}, "")

	// request at version 2, rejected at 3, requested again at 4
	for _, version := range []uint{2, 4, 4} {
		task := &NoticeTask{Notice: lifecycle.Notice{Kind: contract.NoticeAdminPayout, ProposalID: 3, MilestoneID: 9, Version: version}}
		if err := d.Process(context.Background(), task); err != nil {
			t.Fatalf("Process v%d: %v", version, err)
		}
	}
	if len(mailer.sent) != 2 {
		t.Errorf("admin mails = %d, expected one per payout request", len(mailer.sent))
	}
}

func TestNoticeDispatcher_Render(t *testing.T) {
	d := NewNoticeDispatcher(nil, nil, nil, nil, "https://grants.example.com/")

	tests := []struct {
		name          string
		notice        lifecycle.Notice
		subject       string
		shouldContain []string
	}{
		{
			name:          "proposal rejection",
			notice:        lifecycle.Notice{Kind: contract.NoticeProposalRejected, ProposalID: 5, Message: "needs <more> detail"},
			subject:       "[Grants] Your proposal needs changes",
			shouldContain: []string{"needs &lt;more&gt; detail", "https://grants.example.com/proposals/5"},
		},
		{
			name:          "bounty claim",
			notice:        lifecycle.Notice{Kind: contract.NoticeAdminWorkMilestoneClaim, RFWID: 9},
			subject:       "[Grants] Bounty milestone claimed",
			shouldContain: []string{"https://grants.example.com/rfws/9"},
		},
		{
			name:          "unknown kind",
			notice:        lifecycle.Notice{Kind: "mystery"},
			subject:       "[Grants] mystery",
			shouldContain: []string{"View details"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := d.render(tt.notice)
			if subject != tt.subject {
				t.Errorf("subject = %q, expected %q", subject, tt.subject)
			}
			for _, s := range tt.shouldContain {
				if !strings.Contains(body, s) {
					t.Errorf("body should contain %q", s)
				}
			}
		})
	}
}

func TestNoticeSubjects_CoverEveryKind(t *testing.T) {
	kinds := []contract.NoticeKind{
		contract.NoticeProposalApproved, contract.NoticeProposalRejected, contract.NoticeProposalCanceled,
		contract.NoticeAdminApproval, contract.NoticeMilestoneAccept, contract.NoticeMilestoneReject,
		contract.NoticeMilestonePaid, contract.NoticeFollowedProposalMilestone, contract.NoticeAdminPayout,
		contract.NoticeAdminWorkerRequest, contract.NoticeWorkerApproved, contract.NoticeWorkerRejected,
		contract.NoticeAdminWorkMilestoneClaim, contract.NoticeWorkMilestoneAccepted, contract.NoticeWorkMilestoneRejected,
	}
	for _, k := range kinds {
		if noticeSubjects[k] == "" {
			t.Errorf("no subject for %s", k)
		}
	}
}

func TestQueueNotifier_Enqueues(t *testing.T) {
	queue := NewSyncQueue()
	done := make(chan lifecycle.Notice, 2)
	queue.SetProcessor(func(_ context.Context, task *NoticeTask) error {
		if task.ID == "" {
			t.Error("task without id")
		}
		done <- task.Notice
		return nil
	})

	NewQueueNotifier(queue).Notify(context.Background(), []lifecycle.Notice{
		{Kind: contract.NoticeAdminPayout},
		{Kind: contract.NoticeMilestonePaid},
	})
	got := map[contract.NoticeKind]bool{}
	for i := 0; i < 2; i++ {
		got[(<-done).Kind] = true
	}
	if !got[contract.NoticeAdminPayout] || !got[contract.NoticeMilestonePaid] {
		t.Errorf("processed %v", got)
	}
}
