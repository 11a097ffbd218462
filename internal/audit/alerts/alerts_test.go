package alerts

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type settingsWithRecipients struct {
	recipients []string
	mutate     func(*audit.Settings)
}

func (s *settingsWithRecipients) Get(_ context.Context, tenantID id.TenantID) (*audit.Settings, error) {
	cfg := audit.DefaultSettings(tenantID)
	cfg.AlertRecipients = s.recipients
	if s.mutate != nil {
		s.mutate(cfg)
	}
	return cfg, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []string
	reject map[string]error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.reject[to]; ok {
		return err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *fakeMailer) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func testTenant(t *testing.T) id.TenantID {
	t.Helper()
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return tenant
}

func breachRecord(tenant id.TenantID) *audit.Record {
	return &audit.Record{
		ID:           id.NewRecordID(),
		TenantID:     tenant,
		Action:       audit.ActionBreachDetected,
		ResourceType: "excessive_phi_access",
		ResourceName: "51 protected health record reads by one actor within 1h0m0s",
		CreatedAt:    time.Now().UTC(),
	}
}

func drainQueue(t *testing.T, d *Dispatcher, expect func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !expect() {
		select {
		case <-deadline:
			t.Fatal("condition not reached")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcher_BreachAlertFansOutPerRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	d := New(&settingsWithRecipients{
		recipients: []string{"ciso@example.org", "privacy@example.org"},
	}, mailer)

	d.Consume(context.Background(), breachRecord(testTenant(t)))

	drainQueue(t, d, func() bool { return len(mailer.sentTo()) == 2 })
	assert.ElementsMatch(t, []string{"ciso@example.org", "privacy@example.org"}, mailer.sentTo())
	assert.Empty(t, d.DeadLetters())
}

func TestDispatcher_FailedRecipientDoesNotBlockOthers(t *testing.T) {
	mailer := &fakeMailer{
		reject: map[string]error{"bad@example.org": errors.New("mailbox unavailable")},
	}
	d := New(&settingsWithRecipients{
		recipients: []string{"bad@example.org", "good@example.org"},
	}, mailer, WithWorkers(1))

	d.Consume(context.Background(), breachRecord(testTenant(t)))

	drainQueue(t, d, func() bool {
		return len(mailer.sentTo()) == 1 && len(d.DeadLetters()) == 1
	})

	dead := d.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "bad@example.org", dead[0].Alert.Recipient)
	assert.Contains(t, dead[0].Reason, "mailbox unavailable")
	assert.Equal(t, []string{"good@example.org"}, mailer.sentTo())
}

func TestDispatcher_RespectsAlertToggles(t *testing.T) {
	mailer := &fakeMailer{}
	d := New(&settingsWithRecipients{
		recipients: []string{"ciso@example.org"},
		mutate: func(cfg *audit.Settings) {
			cfg.AlertOnPHIAccess = false
		},
	}, mailer)

	d.Consume(context.Background(), &audit.Record{
		ID:           id.NewRecordID(),
		TenantID:     testTenant(t),
		Action:       audit.ActionRead,
		ResourceType: "medical_record",
		PHIAccessed:  true,
		CreatedAt:    time.Now().UTC(),
	})
	assert.Empty(t, mailer.sentTo())
	assert.Len(t, d.queue, 0)
}

func TestDispatcher_BreachAlertIgnoresToggle(t *testing.T) {
	mailer := &fakeMailer{}
	d := New(&settingsWithRecipients{
		recipients: []string{"ciso@example.org"},
		mutate: func(cfg *audit.Settings) {
			cfg.AlertOnBreach = false
		},
	}, mailer)

	d.Consume(context.Background(), breachRecord(testTenant(t)))

	drainQueue(t, d, func() bool { return len(mailer.sentTo()) == 1 })
	assert.Equal(t, []string{"ciso@example.org"}, mailer.sentTo())
}

func TestDispatcher_FailedLoginAlert(t *testing.T) {
	mailer := &fakeMailer{}
	d := New(&settingsWithRecipients{recipients: []string{"soc@example.org"}}, mailer)

	denied := http.StatusUnauthorized
	d.Consume(context.Background(), &audit.Record{
		ID:             id.NewRecordID(),
		TenantID:       testTenant(t),
		Action:         audit.ActionLogin,
		ResponseStatus: &denied,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		IPAddress:      "203.0.113.7",
		CreatedAt:      time.Now().UTC(),
	})

	drainQueue(t, d, func() bool { return len(mailer.sentTo()) == 1 })
}

func TestDispatcher_NoRecipientsNoWork(t *testing.T) {
	mailer := &fakeMailer{}
	d := New(&settingsWithRecipients{}, mailer)

	d.Consume(context.Background(), breachRecord(testTenant(t)))
	assert.Len(t, d.queue, 0)
}

func TestHumanizeUserAgent(t *testing.T) {
	got := humanizeUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Contains(t, got, "Chrome")
	assert.Contains(t, got, "on Windows")

	assert.Equal(t, "unknown client", humanizeUserAgent(""))
}

func TestDeadLetterBufferDropsOldest(t *testing.T) {
	buf := newDeadLetterBuffer(2)
	for i := range 3 {
		buf.Add(DeadLetter{Reason: string(rune('a' + i))})
	}
	entries := buf.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Reason)
	assert.Equal(t, "c", entries[1].Reason)
	assert.EqualValues(t, 1, buf.Dropped())
}
