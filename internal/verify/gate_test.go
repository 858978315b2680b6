package verify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gembot/internal/store"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "verify_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return NewGate(s)
}

func TestGate_Check_Lifecycle(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// Before any profile exists
	access, err := g.Check(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusNotRegistered, access.Status)
	assert.Nil(t, access.User)
	assert.False(t, access.Verified())

	// After registration, before contact share
	_, err = g.Register(ctx, "100", "Dana", "dana_d")
	require.NoError(t, err)

	access, err = g.Check(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusUnverified, access.Status)
	require.NotNil(t, access.User)
	assert.False(t, access.Verified())

	// After contact share
	user, err := g.RecordContact(ctx, "100", "+15559876543", "Dana", "dana_d")
	require.NoError(t, err)
	assert.True(t, user.Verified)
	require.NotNil(t, user.Phone)
	assert.Equal(t, "+15559876543", *user.Phone)

	access, err = g.Check(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, access.Status)
	assert.True(t, access.Verified())
}

func TestGate_RecordContact_BeforeRegister(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	// Contact can arrive before /start ever creates a profile
	user, err := g.RecordContact(ctx, "200", "+15550000000", "Eve", "")
	require.NoError(t, err)
	assert.True(t, user.Verified)

	access, err := g.Check(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, access.Status)
}

func TestGate_RecordContact_Idempotent(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	first, err := g.RecordContact(ctx, "300", "+15551111111", "Frank", "")
	require.NoError(t, err)

	second, err := g.RecordContact(ctx, "300", "+15551111111", "Frank", "")
	require.NoError(t, err)

	assert.Equal(t, first.Verified, second.Verified)
	assert.Equal(t, *first.Phone, *second.Phone)

	// A later share with a different number overwrites
	third, err := g.RecordContact(ctx, "300", "+15552222222", "Frank", "")
	require.NoError(t, err)
	assert.True(t, third.Verified)
	assert.Equal(t, "+15552222222", *third.Phone)
}

func TestGate_Register_DoesNotDowngrade(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	_, err := g.RecordContact(ctx, "400", "+15553333333", "Gus", "")
	require.NoError(t, err)

	// Re-registering a verified user (e.g. a second /start) keeps them verified
	user, err := g.Register(ctx, "400", "Gus", "")
	require.NoError(t, err)
	assert.True(t, user.Verified)
}
