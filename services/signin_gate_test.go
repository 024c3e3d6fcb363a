package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, members *MockMembershipRepository, profiles *MockProfileRepository) (*SignInGate, *coordinatorFixture) {
	t.Helper()

	detector := NewOrphanDetector(members, profiles, DefaultDetectorOptions())
	detector.sleep = func(context.Context, time.Duration) {}

	f := newCoordinatorFixture(t, 1000)
	gate := NewSignInGate(detector, f.coordinator)
	return gate, f
}

func TestSignInGate_CheckSignIn_Proceeds(t *testing.T) {
	members := new(MockMembershipRepository)
	profiles := new(MockProfileRepository)
	members.On("ExistsForOwner", mock.Anything, testIdentityID).Return(true, nil)
	profiles.On("ExistsForSubject", mock.Anything, testIdentityID).Return(true, nil)

	gate, f := newTestGate(t, members, profiles)
	decision, err := gate.CheckSignIn(context.Background(), testIdentityID, testEmail, "corr-1")

	require.NoError(t, err)
	assert.True(t, decision.Proceed)
	assert.False(t, decision.RedirectToRecovery)
	assert.Equal(t, "corr-1", decision.CorrelationID)
	assert.Zero(t, f.codes.count(), "no cleanup is initiated for a healthy identity")
}

func TestSignInGate_CheckSignIn_RedirectsOrphan(t *testing.T) {
	members := new(MockMembershipRepository)
	profiles := new(MockProfileRepository)
	members.On("ExistsForOwner", mock.Anything, testIdentityID).Return(false, nil)
	profiles.On("ExistsForSubject", mock.Anything, testIdentityID).Return(false, nil)

	gate, f := newTestGate(t, members, profiles)
	// The detached pre-initiation call may fire; give it something to do.
	f.knownIdentity()
	f.verifier.On("VerifyOrphaned", mock.Anything, testIdentityID).Return(true, nil).Maybe()
	f.sender.On("Send", mock.Anything, testEmail, mock.Anything, "corr-1").Return(nil).Maybe()

	decision, err := gate.CheckSignIn(context.Background(), testIdentityID, testEmail, "corr-1")

	require.NoError(t, err)
	assert.False(t, decision.Proceed)
	assert.True(t, decision.RedirectToRecovery)
	require.NotNil(t, decision.Classification)
	assert.True(t, decision.Classification.IsOrphaned)
}

func TestSignInGate_CheckSignIn_DetectionFailurePropagates(t *testing.T) {
	members := new(MockMembershipRepository)
	profiles := new(MockProfileRepository)
	members.On("ExistsForOwner", mock.Anything, testIdentityID).Return(false, errors.New("store unavailable"))
	profiles.On("ExistsForSubject", mock.Anything, testIdentityID).Return(false, nil)

	gate, _ := newTestGate(t, members, profiles)
	decision, err := gate.CheckSignIn(context.Background(), testIdentityID, testEmail, "corr-1")

	assert.Nil(t, decision, "a failed detection must block sign-in, not wave it through")
	var detErr *DetectionError
	require.ErrorAs(t, err, &detErr)
}

func TestSignInGate_CheckSignIn_GeneratesCorrelationID(t *testing.T) {
	members := new(MockMembershipRepository)
	profiles := new(MockProfileRepository)
	members.On("ExistsForOwner", mock.Anything, testIdentityID).Return(true, nil)
	profiles.On("ExistsForSubject", mock.Anything, testIdentityID).Return(true, nil)

	gate, _ := newTestGate(t, members, profiles)
	decision, err := gate.CheckSignIn(context.Background(), testIdentityID, testEmail, "")

	require.NoError(t, err)
	assert.NotEmpty(t, decision.CorrelationID)
}
