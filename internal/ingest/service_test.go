package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/redact"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

type capturingNotifier struct {
	mu     sync.Mutex
	issues []*models.Issue
}

func (n *capturingNotifier) NotifyIngest(issue *models.Issue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.issues = append(n.issues, issue)
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.issues)
}

type capturingArchiver struct {
	mu     sync.Mutex
	events []*models.Event
}

func (a *capturingArchiver) Enqueue(event *models.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

type memBlobStore struct {
	mu   sync.Mutex
	blob map[string][]byte
	err  error
}

func (b *memBlobStore) PutAttachment(_ context.Context, appID, eventID uuid.UUID, filename, _ string, data []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blob == nil {
		b.blob = map[string][]byte{}
	}
	key := fmt.Sprintf("%s/%s/%s", appID, eventID, filename)
	b.blob[key] = data
	return key, nil
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, uuid.UUID) {
	t.Helper()
	st := store.NewMemoryStore()
	appID := uuid.New()
	require.NoError(t, st.CreateApp(context.Background(), &models.App{
		ID:     appID,
		Name:   "shopfront",
		Owners: []string{"ava"},
	}))
	svc := NewService(st, cache.NewMemoryCache(), redact.NewRegistry(), redact.ProfileStandard, nil, nil, nil)
	return svc, st, appID
}

func errorEvent(msg string) RawEvent {
	return RawEvent{
		Type:        models.EventTypeBackendError,
		Environment: models.EnvProd,
		Route:       "/checkout",
		Error: &models.ErrorPayload{
			Message:   msg,
			Stack:     "at charge (billing.go:42)",
			ErrorType: "TimeoutError",
		},
	}
}

func TestProcessEvent_ErrorEventOpensIssue(t *testing.T) {
	svc, st, appID := newTestService(t)

	res, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
	require.NoError(t, err)

	assert.True(t, res.IsNewIssue)
	require.NotNil(t, res.Fingerprint)
	require.NotNil(t, res.Issue)
	assert.Equal(t, models.IssueTypeBug, res.Issue.Type)
	assert.Equal(t, models.StatusNew, res.Issue.Status)
	assert.Equal(t, "TimeoutError: payment gateway timed out", res.Issue.Title)
	assert.Equal(t, models.SeverityP2, res.Issue.Severity)
	require.NotNil(t, res.Issue.AssignedTo)
	assert.Equal(t, "ava", *res.Issue.AssignedTo)

	stored, err := st.GetEvent(context.Background(), res.Event.ID, appID)
	require.NoError(t, err)
	assert.Equal(t, res.Fingerprint, stored.Fingerprint)
}

func TestProcessEvent_SecondOccurrenceAppends(t *testing.T) {
	svc, _, appID := newTestService(t)

	first, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
	require.NoError(t, err)
	second, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
	require.NoError(t, err)

	assert.False(t, second.IsNewIssue)
	assert.Equal(t, first.Issue.ID, second.Issue.ID)
	assert.Equal(t, 2, second.Issue.OccurrencesTotal)
	assert.Len(t, second.Issue.EventRefs, 2)
}

func TestProcessEvent_ConcurrentOccurrencesConverge(t *testing.T) {
	svc, st, appID := newTestService(t)

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		newCount int
		issueID  uuid.UUID
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.IsNewIssue {
				newCount++
			}
			issueID = res.Issue.ID
		}()
	}
	wg.Wait()

	require.Empty(t, errs)

	assert.Equal(t, 1, newCount, "exactly one goroutine should win the create race")

	issue, err := st.GetIssue(context.Background(), issueID, appID)
	require.NoError(t, err)
	assert.Equal(t, n, issue.OccurrencesTotal, "no occurrence may be lost")
	assert.Len(t, issue.EventRefs, n)
}

func TestProcessEvent_ResolvedIssueGetsSuccessor(t *testing.T) {
	svc, st, appID := newTestService(t)

	first, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
	require.NoError(t, err)

	resolved := models.StatusResolved
	_, err = st.UpdateIssue(context.Background(), first.Issue.ID, appID, store.IssueUpdate{Status: &resolved})
	require.NoError(t, err)

	second, err := svc.ProcessEvent(context.Background(), appID, errorEvent("payment gateway timed out"))
	require.NoError(t, err)
	assert.True(t, second.IsNewIssue, "a resolved issue must not collect new occurrences")
	assert.NotEqual(t, first.Issue.ID, second.Issue.ID)
}

func TestProcessEvent_FeedbackNeverDeduplicates(t *testing.T) {
	svc, _, appID := newTestService(t)

	raw := RawEvent{
		Type:        models.EventTypeFeedback,
		Environment: models.EnvProd,
		Feedback:    &models.FeedbackPayload{Description: "the export button does nothing", Category: "bug"},
	}

	first, err := svc.ProcessEvent(context.Background(), appID, raw)
	require.NoError(t, err)
	second, err := svc.ProcessEvent(context.Background(), appID, raw)
	require.NoError(t, err)

	assert.Nil(t, first.Fingerprint)
	assert.True(t, first.IsNewIssue)
	assert.True(t, second.IsNewIssue)
	assert.NotEqual(t, first.Issue.ID, second.Issue.ID)
	assert.Equal(t, models.IssueTypeBug, first.Issue.Type)
}

func TestProcessEvent_QuestionIssueType(t *testing.T) {
	svc, _, appID := newTestService(t)

	res, err := svc.ProcessEvent(context.Background(), appID, RawEvent{
		Type:        models.EventTypeQuestion,
		Environment: models.EnvProd,
		Feedback:    &models.FeedbackPayload{Description: "how do I rotate my key?"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.IssueTypeQuestion, res.Issue.Type)
	assert.Equal(t, models.SeverityP3, res.Issue.Severity)
}

func TestProcessEvent_Rejections(t *testing.T) {
	svc, _, appID := newTestService(t)

	tests := []struct {
		name string
		raw  RawEvent
	}{
		{
			name: "unknown event type",
			raw:  RawEvent{Type: "telemetry", Environment: models.EnvProd, Error: &models.ErrorPayload{Message: "x"}},
		},
		{
			name: "unknown environment",
			raw:  RawEvent{Type: models.EventTypeBackendError, Environment: "qa", Error: &models.ErrorPayload{Message: "x"}},
		},
		{
			name: "error event without payload",
			raw:  RawEvent{Type: models.EventTypeBackendError, Environment: models.EnvProd},
		},
		{
			name: "error event with blank message",
			raw:  RawEvent{Type: models.EventTypeBackendError, Environment: models.EnvProd, Error: &models.ErrorPayload{Message: "   "}},
		},
		{
			name: "feedback event without payload",
			raw:  RawEvent{Type: models.EventTypeFeedback, Environment: models.EnvProd},
		},
		{
			name: "both payload variants",
			raw: RawEvent{
				Type:        models.EventTypeBackendError,
				Environment: models.EnvProd,
				Error:       &models.ErrorPayload{Message: "x"},
				Feedback:    &models.FeedbackPayload{Description: "y"},
			},
		},
		{
			name: "unknown redaction profile",
			raw: RawEvent{
				Type:        models.EventTypeBackendError,
				Environment: models.EnvProd,
				Error:       &models.ErrorPayload{Message: "x"},
				Profile:     "paranoid",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessEvent(context.Background(), appID, tt.raw)
			var rejErr *RejectionError
			require.ErrorAs(t, err, &rejErr)
			assert.NotEmpty(t, rejErr.Reason)
		})
	}
}

func TestProcessEvent_UnknownAppIsNotARejection(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessEvent(context.Background(), uuid.New(), errorEvent("x"))
	require.Error(t, err)
	var rejErr *RejectionError
	assert.False(t, errors.As(err, &rejErr), "a missing app is an auth/infra problem, not a bad event")
}

func TestProcessEvent_RedactsPayload(t *testing.T) {
	svc, st, appID := newTestService(t)

	raw := errorEvent("user jane@example.com saw a timeout")
	raw.Error.Context = map[string]any{"card": "4111 1111 1111 1111"}

	res, err := svc.ProcessEvent(context.Background(), appID, raw)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Redactions, 2)

	stored, err := st.GetEvent(context.Background(), res.Event.ID, appID)
	require.NoError(t, err)
	assert.Contains(t, stored.Payload.Error.Message, "[REDACTED_EMAIL]")
	assert.Contains(t, stored.Payload.Error.Context["card"], "[REDACTED_CREDIT_CARD]")
	assert.NotContains(t, res.Issue.Title, "jane@example.com")
}

func TestProcessEvent_ReporterOnlyForIdentifiedUsers(t *testing.T) {
	svc, _, appID := newTestService(t)

	identified := errorEvent("boom one")
	identified.User = &models.EventUser{ID: "u-17", Role: "admin"}
	res, err := svc.ProcessEvent(context.Background(), appID, identified)
	require.NoError(t, err)
	require.NotNil(t, res.Issue.ReportedBy)
	assert.Equal(t, "u-17", *res.Issue.ReportedBy)

	anonymous := errorEvent("boom two")
	anonymous.User = &models.EventUser{ID: "u-18", Anonymous: true}
	res, err = svc.ProcessEvent(context.Background(), appID, anonymous)
	require.NoError(t, err)
	assert.Nil(t, res.Issue.ReportedBy)
}

func TestProcessEvent_UniqueUserEstimate(t *testing.T) {
	svc, _, appID := newTestService(t)

	for i, user := range []string{"u-1", "u-2", "u-1"} {
		raw := errorEvent("payment gateway timed out")
		raw.User = &models.EventUser{ID: user}
		res, err := svc.ProcessEvent(context.Background(), appID, raw)
		require.NoError(t, err, "event %d", i)
		if i == 2 {
			assert.Equal(t, 2, res.Issue.UniqueUsers24hEst, "repeat users must not inflate the estimate")
		}
	}
}

func TestProcessEvent_FutureTimestampClamped(t *testing.T) {
	svc, _, appID := newTestService(t)

	future := time.Now().UTC().Add(time.Hour)
	raw := errorEvent("clock drift")
	raw.Timestamp = &future

	res, err := svc.ProcessEvent(context.Background(), appID, raw)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), res.Event.Timestamp, time.Minute)
}

func TestProcessEvent_NotifiesTriageAndArchiver(t *testing.T) {
	st := store.NewMemoryStore()
	appID := uuid.New()
	require.NoError(t, st.CreateApp(context.Background(), &models.App{ID: appID, Name: "shopfront"}))

	notifier := &capturingNotifier{}
	archiver := &capturingArchiver{}
	svc := NewService(st, cache.NewMemoryCache(), redact.NewRegistry(), redact.ProfileStandard, archiver, nil, notifier)

	_, err := svc.ProcessEvent(context.Background(), appID, errorEvent("boom"))
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())
	assert.Len(t, archiver.events, 1)

	_, err = svc.ProcessEvent(context.Background(), appID, RawEvent{
		Type:        models.EventTypeFeedback,
		Environment: models.EnvProd,
		Feedback:    &models.FeedbackPayload{Description: "love it"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count(), "feedback must not trigger triage")
	assert.Len(t, archiver.events, 2, "every accepted event is archived")
}

func TestProcessBatch(t *testing.T) {
	svc, _, appID := newTestService(t)

	raws := []RawEvent{
		errorEvent("first"),
		{Type: "bogus", Environment: models.EnvProd},
		errorEvent("first"),
	}

	items, err := svc.ProcessBatch(context.Background(), appID, raws)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.True(t, items[0].Accepted)
	require.NotNil(t, items[0].EventID)
	require.NotNil(t, items[0].IssueID)

	assert.False(t, items[1].Accepted)
	assert.Contains(t, items[1].Reason, "event_type")
	assert.Nil(t, items[1].EventID)

	assert.True(t, items[2].Accepted)
	assert.Equal(t, *items[0].IssueID, *items[2].IssueID, "identical errors in one batch share an issue")
}

func TestProcessBatch_SizeLimits(t *testing.T) {
	svc, _, appID := newTestService(t)

	var rejErr *RejectionError
	_, err := svc.ProcessBatch(context.Background(), appID, nil)
	require.ErrorAs(t, err, &rejErr)

	oversize := make([]RawEvent, MaxBatchSize+1)
	for i := range oversize {
		oversize[i] = errorEvent("x")
	}
	_, err = svc.ProcessBatch(context.Background(), appID, oversize)
	require.ErrorAs(t, err, &rejErr)
	assert.Contains(t, rejErr.Reason, "maximum")
}

func TestMergeIssues(t *testing.T) {
	svc, st, appID := newTestService(t)

	target, err := svc.ProcessEvent(context.Background(), appID, errorEvent("timeout in billing"))
	require.NoError(t, err)
	srcA, err := svc.ProcessEvent(context.Background(), appID, errorEvent("timeout in shipping"))
	require.NoError(t, err)
	srcB, err := svc.ProcessEvent(context.Background(), appID, errorEvent("timeout in search"))
	require.NoError(t, err)

	merged, err := svc.MergeIssues(context.Background(), appID, target.Issue.ID,
		[]uuid.UUID{srcA.Issue.ID, srcB.Issue.ID, srcA.Issue.ID})
	require.NoError(t, err)

	assert.Equal(t, 3, merged.OccurrencesTotal, "occurrence counts are conserved")
	assert.Len(t, merged.EventRefs, 3)

	for _, id := range []uuid.UUID{srcA.Issue.ID, srcB.Issue.ID} {
		src, err := st.GetIssue(context.Background(), id, appID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusResolved, src.Status)
		require.NotNil(t, src.MergedInto)
		assert.Equal(t, target.Issue.ID, *src.MergedInto)
	}
}

func TestMergeIssues_Rejections(t *testing.T) {
	svc, _, appID := newTestService(t)

	target, err := svc.ProcessEvent(context.Background(), appID, errorEvent("boom"))
	require.NoError(t, err)

	var rejErr *RejectionError
	_, err = svc.MergeIssues(context.Background(), appID, target.Issue.ID, nil)
	require.ErrorAs(t, err, &rejErr)

	_, err = svc.MergeIssues(context.Background(), appID, target.Issue.ID, []uuid.UUID{target.Issue.ID})
	require.ErrorAs(t, err, &rejErr)
	assert.Contains(t, rejErr.Reason, "itself")

	_, err = svc.MergeIssues(context.Background(), appID, target.Issue.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachFiles(t *testing.T) {
	st := store.NewMemoryStore()
	appID := uuid.New()
	require.NoError(t, st.CreateApp(context.Background(), &models.App{ID: appID, Name: "shopfront"}))
	blobs := &memBlobStore{}
	svc := NewService(st, cache.NewMemoryCache(), redact.NewRegistry(), redact.ProfileStandard, nil, blobs, nil)

	res, err := svc.ProcessEvent(context.Background(), appID, errorEvent("boom"))
	require.NoError(t, err)

	keys, err := svc.AttachFiles(context.Background(), appID, res.Event.ID, []Attachment{
		{Filename: "screenshot.png", ContentType: "image/png", Data: []byte{0x89}},
	})
	require.NoError(t, err)
	require.Len(t, keys, 1)

	stored, err := st.GetEvent(context.Background(), res.Event.ID, appID)
	require.NoError(t, err)
	assert.Equal(t, keys, stored.AttachmentKeys)

	_, err = svc.AttachFiles(context.Background(), appID, uuid.New(), []Attachment{{Filename: "a"}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachFiles_DisabledWithoutBlobStore(t *testing.T) {
	svc, _, appID := newTestService(t)

	var rejErr *RejectionError
	_, err := svc.AttachFiles(context.Background(), appID, uuid.New(), []Attachment{{Filename: "a"}})
	require.ErrorAs(t, err, &rejErr)
	assert.Contains(t, rejErr.Reason, "not enabled")
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whitespace collapsed", "too   many\n lines\t here", "too many lines here"},
		{"short title kept", "checkout failed", "checkout failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}

	long := strings.Repeat("databases ", 20)
	got := deriveTitle(long)
	runes := []rune(got)
	assert.Len(t, runes, titleMaxRunes)
	assert.Equal(t, '…', runes[len(runes)-1])
}
