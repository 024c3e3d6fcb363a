package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	fails int
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(_ context.Context, _, _, _ string) error {
	p.calls++
	if p.calls <= p.fails {
		return errors.New(p.name + " unavailable")
	}
	return nil
}

func TestFailoverSender_FirstProviderSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	backup := &fakeProvider{name: "backup"}
	s := NewFailoverSender(primary, backup)

	err := s.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, backup.calls, "the backup is untouched when the primary delivers")
}

func TestFailoverSender_RetriesBeforeFailover(t *testing.T) {
	primary := &fakeProvider{name: "primary", fails: 1}
	backup := &fakeProvider{name: "backup"}
	s := NewFailoverSender(primary, backup)

	err := s.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls, "the primary gets a second attempt before failover")
	assert.Zero(t, backup.calls)
}

func TestFailoverSender_FailsOverToBackup(t *testing.T) {
	primary := &fakeProvider{name: "primary", fails: 10}
	backup := &fakeProvider{name: "backup"}
	s := NewFailoverSender(primary, backup)

	err := s.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestFailoverSender_AllProvidersExhausted(t *testing.T) {
	primary := &fakeProvider{name: "primary", fails: 10}
	backup := &fakeProvider{name: "backup", fails: 10}
	s := NewFailoverSender(primary, backup)

	err := s.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup unavailable")
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, backup.calls)
}

func TestFailoverSender_NoProviders(t *testing.T) {
	s := NewFailoverSender()

	err := s.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")

	require.Error(t, err)
}

func TestFailoverSender_CancelledContextStops(t *testing.T) {
	primary := &fakeProvider{name: "primary", fails: 10}
	backup := &fakeProvider{name: "backup"}
	s := NewFailoverSender(primary, backup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, "user@example.com", "ABCD2345", "corr-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, primary.calls, "no further attempts once the caller is gone")
	assert.Zero(t, backup.calls)
}

func TestLogProvider_AlwaysSucceeds(t *testing.T) {
	err := LogProvider{}.Send(context.Background(), "user@example.com", "ABCD2345", "corr-1")
	assert.NoError(t, err)
}
