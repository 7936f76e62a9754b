// Package validation checks proposal and bounty content before it enters the
// approval pipeline. Every check runs; the result lists every violated field.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
)

const (
	MaxTitleLength            = 60
	MaxBriefLength            = 140
	MaxContentLength          = 250000
	MaxMilestoneTitleLength   = 60
	MaxMilestoneContentLength = 200
	MaxTagTextLength          = 100
	MaxReasonLength           = 255
)

// ValidateProposal checks everything a proposal needs before it can be
// submitted for approval. now anchors the "not in a past month" date rule.
func ValidateProposal(p *models.Proposal, now time.Time) error {
	ve := &contract.ValidationError{}

	requiredText(ve, "title", p.Title, MaxTitleLength)
	requiredText(ve, "brief", p.Brief, MaxBriefLength)
	requiredText(ve, "content", p.Content, MaxContentLength)

	if p.Category == "" {
		ve.Add("category", "is required")
	} else if !p.Category.Valid() {
		ve.Add("category", "must be one of %s", joinCategories())
	}

	if !p.Target.IsPositive() {
		ve.Add("target", "must be greater than 0")
	}
	if len(p.Team) == 0 {
		ve.Add("team", "must have at least one member")
	}

	validateMilestones(ve, p.Milestones, p.Target, now)

	return ve.Err()
}

func validateMilestones(ve *contract.ValidationError, milestones []models.Milestone, target decimal.Decimal, now time.Time) {
	if len(milestones) == 0 {
		ve.Add("milestones", "at least one milestone is required")
		return
	}

	ms := make([]models.Milestone, len(milestones))
	copy(ms, milestones)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Index < ms[j].Index })

	floor := firstOfMonth(now)
	sum := decimal.Zero
	var prev *time.Time

	for i, m := range ms {
		field := fmt.Sprintf("milestones[%d]", i)

		if m.Index != i {
			ve.Add(field+".index", "expected %d, got %d", i, m.Index)
		}
		requiredText(ve, field+".title", m.Title, MaxMilestoneTitleLength)
		requiredText(ve, field+".content", m.Content, MaxMilestoneContentLength)

		switch {
		case !m.PayoutAmount.IsPositive():
			ve.Add(field+".payoutAmount", "must be greater than 0")
		case !m.PayoutAmount.IsInteger():
			ve.Add(field+".payoutAmount", "must be a whole number")
		}
		sum = sum.Add(m.PayoutAmount)

		if m.ImmediatePayout && i != 0 {
			ve.Add(field+".immediatePayout", "only the first milestone can be paid out immediately")
		}

		if m.DateEstimated == nil {
			ve.Add(field+".dateEstimated", "is required")
			continue
		}
		if m.DateEstimated.Before(floor) {
			ve.Add(field+".dateEstimated", "must not be before %s", floor.Format("2006-01"))
		}
		if prev != nil && m.DateEstimated.Before(*prev) {
			ve.Add(field+".dateEstimated", "must not be before the previous milestone")
		}
		prev = m.DateEstimated
	}

	if target.IsPositive() && !sum.Equal(target) {
		ve.Add("milestones", "payout amounts sum to %s, target is %s", sum.String(), target.String())
	}
}

// ValidateAdminEdit checks the fields an admin may edit on a pending proposal.
func ValidateAdminEdit(p *models.Proposal) error {
	ve := &contract.ValidationError{}
	requiredText(ve, "title", p.Title, MaxTitleLength)
	requiredText(ve, "brief", p.Brief, MaxBriefLength)
	requiredText(ve, "content", p.Content, MaxContentLength)
	if !p.Category.Valid() {
		ve.Add("category", "must be one of %s", joinCategories())
	}
	return ve.Err()
}

// ValidateRFW checks a bounty and its milestones.
func ValidateRFW(r *models.RFW) error {
	ve := &contract.ValidationError{}

	requiredText(ve, "title", r.Title, MaxTitleLength)
	requiredText(ve, "brief", r.Brief, MaxBriefLength)
	optionalText(ve, "content", r.Content, MaxContentLength)
	if r.Category != "" && !r.Category.Valid() {
		ve.Add("category", "must be one of %s", joinCategories())
	}

	for i, m := range r.Milestones {
		field := fmt.Sprintf("milestones[%d]", i)
		if m.Index != i {
			ve.Add(field+".index", "expected %d, got %d", i, m.Index)
		}
		requiredText(ve, field+".title", m.Title, MaxMilestoneTitleLength)
		optionalText(ve, field+".content", m.Content, MaxContentLength)
		if m.EffortFrom < 0 {
			ve.Add(field+".effortFrom", "must not be negative")
		}
		if m.EffortTo < m.EffortFrom {
			ve.Add(field+".effortTo", "must not be less than effortFrom")
		}
		if m.Bounty.IsNegative() {
			ve.Add(field+".bounty", "must not be negative")
		}
	}

	return ve.Err()
}

// ValidateTag checks a tag before upsert.
func ValidateTag(t *models.Tag) error {
	ve := &contract.ValidationError{}
	requiredText(ve, "text", t.Text, MaxTagTextLength)
	optionalText(ve, "description", t.Description, MaxReasonLength)
	return ve.Err()
}

// RequireReason checks a rejection reason.
func RequireReason(field, reason string) error {
	ve := &contract.ValidationError{}
	requiredText(ve, field, reason, MaxReasonLength)
	return ve.Err()
}

func requiredText(ve *contract.ValidationError, field, value string, max int) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
		return
	}
	optionalText(ve, field, value, max)
}

func optionalText(ve *contract.ValidationError, field, value string, max int) {
	if n := utf8.RuneCountInString(value); n > max {
		ve.Add(field, "must be at most %d characters, got %d", max, n)
	}
}

func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func joinCategories() string {
	cats := contract.Categories()
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
