package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/realtime/websocket"
	"audit-portal/portal-backend/internal/settings"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/dates"
	"audit-portal/portal-backend/pkg/workflows"
)

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type contactTable map[uuid.UUID]*settings.Profile

func (t contactTable) ContactProfile(_ context.Context, id uuid.UUID) (*settings.Profile, error) {
	if p, ok := t[id]; ok {
		return p, nil
	}
	return nil, settings.ErrProfileNotFound
}

func (t contactTable) GetCompanyProfile(_ context.Context, projectID uuid.UUID) (*settings.CompanyProfile, error) {
	return &settings.CompanyProfile{ProjectID: projectID, Contacts: []settings.ContactPerson{}}, nil
}

// companyBook adds the contacts of the audited company
type companyBook struct {
	contactTable
	company *settings.CompanyProfile
}

func (b companyBook) GetCompanyProfile(context.Context, uuid.UUID) (*settings.CompanyProfile, error) {
	return b.company, nil
}

type pushed struct {
	target string
	msg    websocket.Message
}

type fakePusher struct {
	mu        sync.Mutex
	toUser    []pushed
	toProject []pushed
	online    map[string]bool
}

func (p *fakePusher) SendToUser(userID string, msg websocket.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return errors.New("not connected")
	}
	p.toUser = append(p.toUser, pushed{userID, msg})
	return nil
}

func (p *fakePusher) SendToProject(projectID string, msg websocket.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toProject = append(p.toProject, pushed{projectID, msg})
	return nil
}

type memDeliveries struct {
	mu   sync.Mutex
	logs []DeliveryLog
}

func (m *memDeliveries) RecordDelivery(_ context.Context, entry *DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memDeliveries) ListDeliveries(_ context.Context, userID uuid.UUID, limit int) ([]DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeliveryLog
	for _, l := range m.logs {
		if l.UserID == userID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func rejectedChange(auditor uuid.UUID) weeks.StatusChange {
	comment := "Missing dates"
	return weeks.StatusChange{
		Week: &weeks.Week{
			ID:               uuid.New(),
			ProjectID:        uuid.New(),
			UserID:           auditor,
			Title:            "Week 1",
			StartDate:        dates.MustParse("2024-01-01"),
			EndDate:          dates.MustParse("2024-01-07"),
			Status:           workflows.StatusRejected,
			RejectionComment: &comment,
		},
		From:      workflows.StatusPendingApproval,
		ActorID:   uuid.New(),
		ActorRole: workflows.RoleCounterpart,
	}
}

func TestBuildNotice(t *testing.T) {
	at := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	n := BuildNotice(rejectedChange(uuid.New()), at)

	assert.Equal(t, `Stage "Week 1" rejected`, n.Subject)
	assert.Equal(t, "Stage \"Week 1\" rejected (2024-01-01 to 2024-01-07).\nComment: Missing dates", n.Text)
	assert.Equal(t, workflows.StatusPendingApproval, n.From)
	assert.Equal(t, workflows.StatusRejected, n.To)
	assert.Equal(t, at, n.At)
}

func TestService_CounterpartActionReachesAuditor(t *testing.T) {
	auditor := uuid.New()
	change := rejectedChange(auditor)

	ses := new(MockSES)
	ses.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return in.Destination.ToAddresses[0] == "auditor@example.com" &&
			aws.ToString(in.Content.Simple.Subject.Data) == `Stage "Week 1" rejected`
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil)

	smsClient := new(MockSNS)
	smsClient.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	pusher := &fakePusher{online: map[string]bool{auditor.String(): true}}
	store := &memDeliveries{}
	contacts := contactTable{auditor: {ID: auditor, Email: "auditor@example.com", Phone: "+15550100"}}

	svc := NewService(
		[]Sender{NewEmailChannel(ses, "noreply@example.com"), NewSMSChannel(smsClient, ""), NewTelegramChannel("", 0)},
		contacts, pusher, store, zap.NewNop(),
	)

	statuses := svc.Deliver(context.Background(), auditor, BuildNotice(change, time.Now()))

	byChannel := map[string]ChannelDeliveryStatus{}
	for _, st := range statuses {
		byChannel[st.Channel] = st
	}
	assert.Equal(t, StatusSent, byChannel[ChannelWebSocket].Status)
	assert.Equal(t, StatusSent, byChannel[ChannelEmail].Status)
	assert.Equal(t, "ses-1", *byChannel[ChannelEmail].ProviderID)
	assert.Equal(t, StatusFailed, byChannel[ChannelSMS].Status)
	assert.Equal(t, StatusSkipped, byChannel[ChannelTelegram].Status)

	require.Len(t, pusher.toProject, 1)
	assert.Equal(t, websocket.MessageTypeStatus, pusher.toProject[0].msg.Type)
	require.Len(t, pusher.toUser, 1)
	assert.Equal(t, websocket.MessageTypeNotification, pusher.toUser[0].msg.Type)

	// skipped channels leave no trace
	require.Len(t, store.logs, 2)
	ses.AssertExpectations(t)
}

func TestService_AuditorActionOnlyPushesToProject(t *testing.T) {
	auditor := uuid.New()
	change := rejectedChange(auditor)
	change.Week.Status = workflows.StatusPendingApproval
	change.From = workflows.StatusDraft
	change.ActorID = auditor
	change.ActorRole = workflows.RoleAuditor

	ses := new(MockSES)
	pusher := &fakePusher{online: map[string]bool{auditor.String(): true}}
	svc := NewService([]Sender{NewEmailChannel(ses, "noreply@example.com")},
		contactTable{auditor: {ID: auditor, Email: "a@example.com"}}, pusher, nil, zap.NewNop())

	svc.StatusChanged(context.Background(), change)
	svc.Wait()

	require.Len(t, pusher.toProject, 1)
	assert.Equal(t, change.Week.ProjectID.String(), pusher.toProject[0].target)
	assert.Empty(t, pusher.toUser)
	ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func completedChange(auditor uuid.UUID) weeks.StatusChange {
	change := rejectedChange(auditor)
	change.Week.Status = workflows.StatusCompleted
	change.Week.RejectionComment = nil
	change.From = workflows.StatusApproved
	change.ActorID = auditor
	change.ActorRole = workflows.RoleAuditor
	change.LeftApproved = true
	return change
}

func TestBuildNotice_LeftApproved(t *testing.T) {
	n := BuildNotice(completedChange(uuid.New()), time.Now())

	assert.True(t, n.PlanChanged)
	assert.Equal(t, `Previously agreed plan for stage "Week 1" changed`, n.Subject)
	assert.Equal(t, "Previously agreed plan for stage \"Week 1\" changed (2024-01-01 to 2024-01-07). The stage is now completed.", n.Text)
}

func TestService_LeftApprovedReachesCompanyContacts(t *testing.T) {
	auditor := uuid.New()
	change := completedChange(auditor)

	ses := new(MockSES)
	ses.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return in.Destination.ToAddresses[0] == "cfo@client.example" &&
			aws.ToString(in.Content.Simple.Subject.Data) == `Previously agreed plan for stage "Week 1" changed`
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-2")}, nil).Once()

	pusher := &fakePusher{online: map[string]bool{auditor.String(): true}}
	store := &memDeliveries{}
	book := companyBook{
		contactTable: contactTable{auditor: {ID: auditor, Email: "auditor@example.com"}},
		company: &settings.CompanyProfile{
			ProjectID: change.Week.ProjectID,
			Contacts: []settings.ContactPerson{
				{Name: "Dana", Role: "CFO", Email: "cfo@client.example"},
				{Name: "No address"},
			},
		},
	}
	svc := NewService([]Sender{NewEmailChannel(ses, "noreply@example.com")}, book, pusher, store, zap.NewNop())

	svc.StatusChanged(context.Background(), change)
	svc.Wait()

	require.Len(t, pusher.toProject, 1)
	notice, ok := pusher.toProject[0].msg.Data.(Notice)
	require.True(t, ok)
	assert.True(t, notice.PlanChanged)
	assert.Empty(t, pusher.toUser, "the auditor acted and gets no direct notice")

	require.Len(t, store.logs, 1)
	assert.Equal(t, auditor, store.logs[0].UserID)
	assert.Equal(t, StatusSent, store.logs[0].Status)
	ses.AssertExpectations(t)
}

func TestService_MissingProfileIsQuiet(t *testing.T) {
	auditor := uuid.New()
	ses := new(MockSES)
	svc := NewService([]Sender{NewEmailChannel(ses, "noreply@example.com")}, contactTable{}, nil, nil, zap.NewNop())

	statuses := svc.Deliver(context.Background(), auditor, BuildNotice(rejectedChange(auditor), time.Now()))

	assert.Empty(t, statuses)
	ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestTelegramChannel_Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if gotBody["chat_id"] == "blocked" {
			_, _ = w.Write([]byte(`{"ok":false,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	}))
	defer server.Close()

	ch := NewTelegramChannel(server.URL, time.Second)
	notice := Notice{Text: "Stage approved"}

	id, err := ch.Send(context.Background(), Recipient{TelegramBotToken: "123:abc", TelegramChatID: "42"}, notice)
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Equal(t, "Stage approved", gotBody["text"])

	_, err = ch.Send(context.Background(), Recipient{TelegramBotToken: "123:abc", TelegramChatID: "blocked"}, notice)
	assert.ErrorContains(t, err, "bot was blocked")

	_, err = ch.Send(context.Background(), Recipient{TelegramChatID: "42"}, notice)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestSMSChannel_Send(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		_, hasSender := in.MessageAttributes["AWS.SNS.SMS.SenderID"]
		return aws.ToString(in.PhoneNumber) == "+15550100" && hasSender
	})).Return(&sns.PublishOutput{MessageId: aws.String("sns-9")}, nil)

	id, err := NewSMSChannel(client, "AUDIT").Send(context.Background(), Recipient{Phone: "+15550100"}, Notice{Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "sns-9", id)

	_, err = NewSMSChannel(client, "").Send(context.Background(), Recipient{}, Notice{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoAddress)
}
