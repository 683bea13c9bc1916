package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	mu    sync.Mutex
	sent  []string
	to    [][]string
	fails bool
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails {
		return errors.New("smtp down")
	}
	p.sent = append(p.sent, templateName)
	p.to = append(p.to, to)
	return nil
}

func TestNotifyAdminDeliversToConfiguredRecipients(t *testing.T) {
	provider := &recordingProvider{}
	n := NewNotifier(provider, []string{"ops@example.com", " "}, zap.NewNop())

	n.NotifyAdmin(context.Background(), TemplateMerchantError, map[string]any{"scope": "default"})
	n.Wait()

	require.Len(t, provider.sent, 1)
	assert.Equal(t, TemplateMerchantError, provider.sent[0])
	assert.Equal(t, []string{"ops@example.com"}, provider.to[0])
}

func TestNotifyAdminWithoutRecipientsIsDropped(t *testing.T) {
	provider := &recordingProvider{}
	n := NewNotifier(provider, nil, zap.NewNop())

	n.NotifyAdmin(context.Background(), TemplateCancellationFailed, nil)
	n.Wait()

	assert.Empty(t, provider.sent)
}

func TestDeliveryFailureDoesNotReachCaller(t *testing.T) {
	n := NewNotifier(&recordingProvider{fails: true}, []string{"ops@example.com"}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	n.NotifyAdmin(ctx, TemplateMerchantError, nil)
	cancel()
	n.Wait()
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.NotifyAdmin(context.Background(), TemplateMerchantError, nil)
	n.Wait()
}

func TestTemplatesRender(t *testing.T) {
	body, err := render(TemplateCancellationFailed, map[string]any{
		"scope": "store-1", "reference": "wp-1", "attempt_id": "42", "status": "REVERT_FAILED", "error": "provider down",
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(body, "REVERT_FAILED"))

	_, err = render("missing", nil)
	assert.Error(t, err)

	assert.Equal(t, "Wallet payment configuration error", subjectFor(TemplateMerchantError, nil))
	assert.Equal(t, "custom", subjectFor(TemplateMerchantError, map[string]any{"subject": "custom"}))
}
