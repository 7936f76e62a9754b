package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/metrics"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
	"gorm.io/gorm"
)

// Notifier receives the notices of a committed write. Delivery is best
// effort: failures are logged and counted, never returned.
type Notifier interface {
	Notify(ctx context.Context, notices []lifecycle.Notice)
}

// QueueNotifier hands every notice to a TaskQueue.
type QueueNotifier struct {
	queue TaskQueue
}

func NewQueueNotifier(queue TaskQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, notices []lifecycle.Notice) {
	for _, notice := range notices {
		task := &NoticeTask{ID: uuid.NewString(), Notice: notice, CreatedAt: time.Now()}
		if err := n.queue.Enqueue(task); err != nil {
			metrics.RecordNotification(string(notice.Kind), "failed")
			logger.Error().Err(err).Str("kind", string(notice.Kind)).Msg("[Notification] enqueue failed")
		}
	}
}

// NoticeDispatcher resolves the audience of a notice, mails it and
// publishes it as a domain event.
type NoticeDispatcher struct {
	db      *gorm.DB
	mailer  Mailer
	events  EventPublisher
	dedup   Deduper
	siteURL string
}

// NewNoticeDispatcher wires the delivery ports. events and dedup may be nil.
func NewNoticeDispatcher(db *gorm.DB, mailer Mailer, events EventPublisher, dedup Deduper, siteURL string) *NoticeDispatcher {
	return &NoticeDispatcher{
		db:      db,
		mailer:  mailer,
		events:  events,
		dedup:   dedup,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// dedupKey identifies a notice by what it is about and the aggregate version
// that produced it, not by task id. A redelivered task sends one mail; the
// same transition repeated later carries a new version.
func dedupKey(n lifecycle.Notice) string {
	return fmt.Sprintf("%s:%d:%d:%d:%d:%d:v%d", n.Kind, n.ProposalID, n.MilestoneID, n.RFWID, n.WorkerID, n.ClaimID, n.Version)
}

// Process delivers one task. It is the processor of both queues.
func (d *NoticeDispatcher) Process(ctx context.Context, task *NoticeTask) error {
	n := task.Notice
	kind := string(n.Kind)

	key := dedupKey(n)
	if d.dedup != nil && !d.dedup.AcquireOnce(ctx, key) {
		metrics.RecordNotification(kind, "deduplicated")
		return nil
	}

	recipients, err := d.Recipients(ctx, n)
	if err != nil {
		d.release(ctx, key)
		metrics.RecordNotification(kind, "failed")
		return fmt.Errorf("resolve recipients: %w", err)
	}

	emails, err := d.emails(ctx, recipients)
	if err != nil {
		d.release(ctx, key)
		metrics.RecordNotification(kind, "failed")
		return err
	}

	subject, body := d.render(n)
	if err := d.mailer.Send(ctx, emails, subject, body); err != nil {
		d.release(ctx, key)
		metrics.RecordNotification(kind, "failed")
		return err
	}

	if d.events != nil {
		if err := d.events.Publish(ctx, "notice."+kind, task); err != nil {
			metrics.EventsPublished.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Str("kind", kind).Msg("[Notification] event publish failed")
		} else {
			metrics.EventsPublished.WithLabelValues("sent").Inc()
		}
	}

	metrics.RecordNotification(kind, "sent")
	logger.Info().Str("kind", kind).Int("recipients", len(recipients)).Msg("[Notification] dispatched")
	return nil
}

func (d *NoticeDispatcher) release(ctx context.Context, key string) {
	if d.dedup != nil {
		d.dedup.Release(ctx, key)
	}
}

// Recipients returns the user ids a notice goes to.
func (d *NoticeDispatcher) Recipients(ctx context.Context, n lifecycle.Notice) ([]uint, error) {
	switch n.Kind.Audience() {
	case "admins":
		var ids []uint
		err := d.db.WithContext(ctx).Model(&models.User{}).
			Where("role = ? AND is_active = ?", contract.RoleAdmin, true).
			Order("id ASC").
			Pluck("id", &ids).Error
		return ids, err
	case "followers":
		var ids []uint
		err := d.db.WithContext(ctx).Model(&models.ProposalFollower{}).
			Where("proposal_id = ?", n.ProposalID).
			Order("user_id ASC").
			Pluck("user_id", &ids).Error
		return ids, err
	default:
		return n.Recipients, nil
	}
}

func (d *NoticeDispatcher) emails(ctx context.Context, ids []uint) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var emails []string
	err := d.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND is_active = ? AND email <> ''", ids, true).
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("load recipient emails: %w", err)
	}
	return emails, nil
}

var noticeSubjects = map[contract.NoticeKind]string{
	contract.NoticeProposalApproved:          "Your proposal has been approved",
	contract.NoticeProposalRejected:          "Your proposal needs changes",
	contract.NoticeProposalCanceled:          "Your proposal has been canceled",
	contract.NoticeAdminApproval:             "Proposal awaiting review",
	contract.NoticeMilestoneAccept:           "Milestone payout approved",
	contract.NoticeMilestoneReject:           "Milestone payout request rejected",
	contract.NoticeMilestonePaid:             "Milestone payout sent",
	contract.NoticeFollowedProposalMilestone: "A proposal you follow reached a milestone",
	contract.NoticeAdminPayout:               "Milestone payout requested",
	contract.NoticeAdminWorkerRequest:        "New bounty worker request",
	contract.NoticeWorkerApproved:            "You can start working on the bounty",
	contract.NoticeWorkerRejected:            "Your bounty worker request was declined",
	contract.NoticeAdminWorkMilestoneClaim:   "Bounty milestone claimed",
	contract.NoticeWorkMilestoneAccepted:     "Your bounty claim was accepted",
	contract.NoticeWorkMilestoneRejected:     "Your bounty claim was rejected",
}

func (d *NoticeDispatcher) link(n lifecycle.Notice) string {
	switch {
	case n.ProposalID != 0:
		return fmt.Sprintf("%s/proposals/%d", d.siteURL, n.ProposalID)
	case n.RFWID != 0:
		return fmt.Sprintf("%s/rfws/%d", d.siteURL, n.RFWID)
	}
	return d.siteURL
}

func (d *NoticeDispatcher) render(n lifecycle.Notice) (subject, body string) {
	subject = noticeSubjects[n.Kind]
	if subject == "" {
		subject = string(n.Kind)
	}
	subject = "[Grants] " + subject

	var sb strings.Builder
	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(noticeSubjects[n.Kind])))
	if n.Message != "" {
		sb.WriteString(fmt.Sprintf("<blockquote style=\"background: #f5f5f5; padding: 12px;\">%s</blockquote>", html.EscapeString(n.Message)))
	}
	if d.siteURL != "" {
		sb.WriteString(fmt.Sprintf("<p><a href=\"%s\">View details</a></p>", html.EscapeString(d.link(n))))
	}
	sb.WriteString("</body></html>")
	return subject, sb.String()
}
