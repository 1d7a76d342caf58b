package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	require.NoError(t, Check(StatusNone))

	err := Check(StatusInvalidArgs)
	require.Error(t, err)

	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, StatusInvalidArgs, ie.Code)
	assert.Contains(t, err.Error(), "invalid-args")
}

func TestInternalErrorIs(t *testing.T) {
	err := fmt.Errorf("dataset set: %w", Check(StatusSecurity))

	assert.ErrorIs(t, err, &InternalError{Code: StatusSecurity})
	assert.NotErrorIs(t, err, &InternalError{Code: StatusBusy})
	assert.Equal(t, StatusSecurity, StatusOf(err))
	assert.Equal(t, StatusFailed, StatusOf(errors.New("other")))
	assert.Equal(t, StatusNone, StatusOf(nil))
}

func TestStatusStringUnknown(t *testing.T) {
	assert.Equal(t, "status(99)", Status(99).String())
}

func TestChangedFlagsNativeValues(t *testing.T) {
	tests := []struct {
		flag ChangedFlags
		want uint32
	}{
		{Ipv6AddressAdded, 1},
		{ThreadRoleChanged, 4},
		{ThreadNetworkDataChanged, 512},
		{ThreadNetworkChannelChanged, 16384},
		{ThreadPanIdChanged, 32768},
		{CommissionerStateChanged, 8388608},
		{ActiveDatasetChanged, 268435456},
		{PendingDatasetChanged, 536870912},
	}
	for _, tt := range tests {
		t.Run(tt.flag.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flag.Bits())
		})
	}
}

func TestDecodeChangedFlagsRoundTrip(t *testing.T) {
	// Every single bit and a spread of combinations the engine can emit.
	words := []uint32{0, uint32(KnownChangedFlags)}
	for i := 0; i < 30; i++ {
		words = append(words, 1<<i)
	}
	for w := uint32(1); w < 1<<30; w = w*7 + 3 {
		words = append(words, w&uint32(KnownChangedFlags))
	}

	for _, w := range words {
		flags, unknown := DecodeChangedFlags(w)
		assert.Zero(t, unknown, "word %#x", w)
		assert.Equal(t, w, flags.Bits(), "word %#x", w)
	}
}

func TestDecodeChangedFlagsUnknownBits(t *testing.T) {
	flags, unknown := DecodeChangedFlags(uint32(ThreadRoleChanged) | 1<<31)

	assert.Equal(t, ThreadRoleChanged, flags)
	assert.Equal(t, uint32(1<<31), unknown)
}

func TestChangedFlagsString(t *testing.T) {
	f := ThreadRoleChanged | ThreadNetworkDataChanged
	assert.Equal(t, "ThreadRoleChanged|ThreadNetworkDataChanged", f.String())
	assert.Equal(t, "none", ChangedFlags(0).String())
	assert.True(t, f.Has(ThreadRoleChanged))
	assert.False(t, f.Has(ThreadRoleChanged|ActiveDatasetChanged))
}

func TestParseRole(t *testing.T) {
	for v, want := range []string{"disabled", "detached", "child", "router", "leader"} {
		r, ok := ParseRole(uint32(v))
		require.True(t, ok)
		assert.Equal(t, want, r.String())
	}
	_, ok := ParseRole(5)
	assert.False(t, ok)
}

func TestSecurityPolicyVersionThreshold(t *testing.T) {
	f := PolicyRouters.WithVersionThreshold(5)
	assert.Equal(t, uint8(5), f.VersionThreshold())
	assert.True(t, f&PolicyRouters != 0)

	f = f.WithVersionThreshold(2)
	assert.Equal(t, uint8(2), f.VersionThreshold())
	assert.Equal(t, PolicyRouters, f&^(policyVersionMask<<policyVersionShift))
}

func TestAllComponents(t *testing.T) {
	assert.Equal(t, Components(0xFFF), AllComponents)
	assert.True(t, AllComponents.Has(ComponentChannel|ComponentPanID))
}
