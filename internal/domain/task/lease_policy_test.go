package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicyRequiresPositiveDefault(t *testing.T) {
	_, err := NewLeasePolicy(0)
	require.ErrorIs(t, err, ErrInvalidDefaultLease)

	_, err = NewLeasePolicy(-time.Second)
	require.ErrorIs(t, err, ErrInvalidDefaultLease)

	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, policy.Default())
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		request time.Duration
		seconds int
		source  LeaseSource
	}{
		{"explicit whole seconds", 45 * time.Second, 45, LeaseSourceExplicit},
		{"explicit truncates to whole seconds", 1500 * time.Millisecond, 1, LeaseSourceExplicit},
		{"sub-second clamps to one", 100 * time.Millisecond, 1, LeaseSourceClamped},
		{"zero uses default", 0, 30, LeaseSourceDefault},
		{"negative clamps to one", -time.Minute, 1, LeaseSourceClamped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Resolve(tt.request)
			assert.Equal(t, tt.seconds, decision.Seconds)
			assert.Equal(t, tt.source, decision.Source)
			assert.Equal(t, tt.request, decision.Requested)
		})
	}
}

func TestLeaseDecision_Flags(t *testing.T) {
	policy, err := NewLeasePolicy(time.Minute)
	require.NoError(t, err)

	assert.True(t, policy.Resolve(0).UsedDefault())
	assert.False(t, policy.Resolve(time.Second).UsedDefault())
	assert.True(t, policy.Resolve(-1).Clamped())
	assert.False(t, policy.Resolve(time.Second).Clamped())
}

func TestLeasePolicy_NilReceiver(t *testing.T) {
	var policy *LeasePolicy
	assert.Zero(t, policy.Default())

	decision := policy.Resolve(time.Minute)
	assert.Zero(t, decision.Seconds)
	assert.Equal(t, LeaseSourceDefault, decision.Source)
}
