package hitl

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shaiso/Procura/internal/domain"
)

func TestAssignPriority(t *testing.T) {
	amount := []domain.Issue{{Type: domain.IssueAmountAnomaly}}
	vendor := []domain.Issue{{Type: domain.IssueVendorUnknown}}

	tests := []struct {
		name       string
		qa         domain.QAResult
		confidence float64
		want       domain.Priority
	}{
		{"rejected", domain.QAResult{Verdict: domain.VerdictRejected}, 90, domain.PriorityHigh},
		{"low confidence", domain.QAResult{Verdict: domain.VerdictApproved}, 40, domain.PriorityHigh},
		{"moderate confidence", domain.QAResult{Verdict: domain.VerdictFlagged}, 60, domain.PriorityMedium},
		{"flagged confident", domain.QAResult{Verdict: domain.VerdictFlagged}, 85, domain.PriorityLow},
		{"amount anomaly overrides", domain.QAResult{Verdict: domain.VerdictFlagged, Issues: amount}, 85, domain.PriorityHigh},
		{"vendor unknown raises", domain.QAResult{Verdict: domain.VerdictFlagged, Issues: vendor}, 85, domain.PriorityMedium},
		{"vendor unknown keeps high", domain.QAResult{Verdict: domain.VerdictRejected, Issues: vendor}, 85, domain.PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := AssignPriority(tt.qa, tt.confidence)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestAssignPriority_LowConfidenceReason(t *testing.T) {
	_, reason := AssignPriority(domain.QAResult{Verdict: domain.VerdictFlagged, WeightedScore: 70}, 40)
	assert.Equal(t, "low classification confidence: 40; rubric verdict flagged (score 70.0)", reason)
}

func sessionWithReview() *domain.SessionState {
	s := domain.NewSessionState("s1")
	s.InputRecords = []domain.InputRecord{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}
	s.Classifications = []domain.Classification{
		{RecordID: "r1", Code: "43211503", Confidence: 90},
		{RecordID: "r2", Code: "43211503", Confidence: 40},
		{RecordID: "r3", Code: "43211503", Confidence: 80},
	}
	s.QAResults = []domain.QAResult{
		{ClassificationID: "r1", Verdict: domain.VerdictApproved},
		{ClassificationID: "r2", Verdict: domain.VerdictApproved},
		{ClassificationID: "r3", Verdict: domain.VerdictFlagged},
	}
	return s
}

func TestCollect(t *testing.T) {
	s := sessionWithReview()
	now := time.Now()

	items := Collect(s, now)
	require.Len(t, items, 2)
	assert.Equal(t, "r2", items[0].RecordID)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)
	assert.Equal(t, domain.HITLStatusPending, items[0].Status)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, "r3", items[1].RecordID)

	s.Apply(domain.Update{HITLItems: items})
	assert.Empty(t, Collect(s, now), "items are created once per record")
	assert.Equal(t, 2, PendingCount(s))

	pending := Pending(s)
	assert.Equal(t, domain.PriorityHigh, pending[0].Priority)
}

func TestApply(t *testing.T) {
	s := sessionWithReview()
	now := time.Now()
	s.Apply(domain.Update{HITLItems: Collect(s, now)})
	itemID := s.HITLQueue[0].ID

	decided, err := Apply(s, domain.HITLDecision{ItemID: itemID, Action: domain.ActionApprove}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HITLStatusDecided, decided.Status)
	assert.Equal(t, 1, PendingCount(s))
	assert.True(t, Resolved(s, "r2"))
	assert.False(t, Resolved(s, "r3"))
	assert.True(t, Resolved(s, "r1"))
	require.Len(t, s.HITLDecisions, 1)
	assert.False(t, s.HITLDecisions[0].DecidedAt.IsZero())

	_, err = Apply(s, domain.HITLDecision{ItemID: itemID, Action: domain.ActionReject}, now)
	assert.ErrorIs(t, err, ErrItemAlreadyDecided)
	assert.Len(t, s.HITLDecisions, 1)
}

func TestValidateDecision(t *testing.T) {
	s := sessionWithReview()
	s.Apply(domain.Update{HITLItems: Collect(s, time.Now())})
	itemID := s.HITLQueue[0].ID

	tests := []struct {
		name     string
		decision domain.HITLDecision
		wantErr  error
	}{
		{"unknown item", domain.HITLDecision{ItemID: "nope", Action: domain.ActionApprove}, ErrItemNotFound},
		{"missing action", domain.HITLDecision{ItemID: itemID}, ErrInvalidDecision},
		{"bad action", domain.HITLDecision{ItemID: itemID, Action: "ignore"}, ErrInvalidDecision},
		{"modify without code", domain.HITLDecision{ItemID: itemID, Action: domain.ActionModify}, ErrInvalidDecision},
		{"modify bad code", domain.HITLDecision{ItemID: itemID, Action: domain.ActionModify, Code: "12", Title: "x"}, ErrInvalidDecision},
		{"modify ok", domain.HITLDecision{ItemID: itemID, Action: domain.ActionModify, Code: "43211507", Title: "Desktop computers"}, nil},
		{"escalate ok", domain.HITLDecision{ItemID: itemID, Action: domain.ActionEscalate}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDecision(s, tt.decision)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReject_LeavesRecordUnclassified(t *testing.T) {
	s := sessionWithReview()
	s.Apply(domain.Update{HITLItems: Collect(s, time.Now())})
	item, _ := s.HITLItemForRecord("r3")

	_, err := Apply(s, domain.HITLDecision{ItemID: item.ID, Action: domain.ActionReject}, time.Now())
	require.NoError(t, err)

	_, ok := s.FinalClassification("r3")
	assert.False(t, ok)
	assert.True(t, s.IsRejected("r3"))
	_, ok = s.Classification("r3")
	assert.True(t, ok, "the original classification stays in the log")
}

func TestPendingMonotonic(t *testing.T) {
	actions := []domain.DecisionAction{
		domain.ActionApprove, domain.ActionReject, domain.ActionEscalate,
	}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		s := domain.NewSessionState("s")
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("r%d", i)
			s.InputRecords = append(s.InputRecords, domain.InputRecord{ID: id})
			s.Classifications = append(s.Classifications, domain.Classification{RecordID: id, Confidence: 30})
			s.QAResults = append(s.QAResults, domain.QAResult{ClassificationID: id, Verdict: domain.VerdictRejected})
		}
		s.Apply(domain.Update{HITLItems: Collect(s, time.Now())})

		prev := PendingCount(s)
		order := rapid.Permutation(s.HITLQueue).Draw(t, "order")
		for i, item := range order {
			action := rapid.SampledFrom(actions).Draw(t, fmt.Sprintf("action_%d", i))
			if _, err := Apply(s, domain.HITLDecision{ItemID: item.ID, Action: action}, time.Now()); err != nil {
				t.Fatalf("apply: %v", err)
			}
			// повторное решение отклоняется и счётчик не растёт
			if _, err := Apply(s, domain.HITLDecision{ItemID: item.ID, Action: action}, time.Now()); err == nil {
				t.Fatalf("second decision accepted")
			}
			cur := PendingCount(s)
			if cur > prev {
				t.Fatalf("pending grew from %d to %d", prev, cur)
			}
			prev = cur
		}

		if prev != 0 || len(s.HITLDecisions) != len(s.HITLQueue) {
			t.Fatalf("pending %d, decisions %d, items %d", prev, len(s.HITLDecisions), len(s.HITLQueue))
		}
	})
}
