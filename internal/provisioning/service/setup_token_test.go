package service

import (
	"context"
	"testing"
	"time"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrganisation(t *testing.T, h *harness, name string) *domain.Organisation {
	t.Helper()
	org := &domain.Organisation{Nom: name, DatabaseName: domain.DatabaseNameFromNom(name), EmailContact: "ops@" + domain.DatabaseNameFromNom(name) + ".example", Plan: "premium", Status: domain.StatusPending}
	require.NoError(t, h.reg.Organisations().Create(context.Background(), org))
	return org
}

func TestTokenManager_IssueAndValidate(t *testing.T) {
	h := newHarness(t)
	org := pendingOrganisation(t, h, "Acme Freight")
	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "admin-1", Email: "root@shipnology.test"})

	issued, err := h.tokens.Issue(ctx, org.ID, org.EmailContact, 0)
	require.NoError(t, err)

	assert.Equal(t, "token-1", issued.Token)
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), issued.ExpiresAt)
	assert.Equal(t, "https://app.shipnology.test/setup?token=token-1", issued.SetupURL)

	tok, got, err := h.tokens.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
	assert.False(t, tok.Used)
	require.NotNil(t, tok.GeneratedBy)
	assert.Equal(t, "root@shipnology.test", *tok.GeneratedBy)
}

func TestTokenManager_Validate(t *testing.T) {
	t.Run("empty and unknown tokens are not found", func(t *testing.T) {
		h := newHarness(t)

		_, _, err := h.tokens.Validate(context.Background(), "  ")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)

		_, _, err = h.tokens.Validate(context.Background(), "nope")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("validation never consumes", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		issued, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, _, err := h.tokens.Validate(context.Background(), issued.Token)
			require.NoError(t, err)
		}
	})

	t.Run("past expiry is refused", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		issued, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, time.Hour)
		require.NoError(t, err)

		h.clock.Advance(time.Hour + time.Second)

		_, _, err = h.tokens.Validate(context.Background(), issued.Token)
		assert.ErrorIs(t, err, domain.ErrTokenExpired)
		assert.Equal(t, 410, errors.From(err).StatusCode)
	})

	t.Run("expiry wins over use", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		issued, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, time.Hour)
		require.NoError(t, err)
		require.NoError(t, h.tokens.Consume(context.Background(), issued.Token))

		_, _, err = h.tokens.Validate(context.Background(), issued.Token)
		assert.ErrorIs(t, err, domain.ErrTokenAlreadyUsed)

		h.clock.Advance(2 * time.Hour)

		_, _, err = h.tokens.Validate(context.Background(), issued.Token)
		assert.ErrorIs(t, err, domain.ErrTokenExpired)
	})

	t.Run("token of a removed organisation is not found", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		issued, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
		require.NoError(t, err)

		h.reg.mu.Lock()
		delete(h.reg.orgs, org.ID)
		h.reg.mu.Unlock()

		_, _, err = h.tokens.Validate(context.Background(), issued.Token)
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

func TestTokenManager_Consume(t *testing.T) {
	h := newHarness(t)
	org := pendingOrganisation(t, h, "Acme Freight")
	issued, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
	require.NoError(t, err)

	require.NoError(t, h.tokens.Consume(context.Background(), issued.Token))

	err = h.tokens.Consume(context.Background(), issued.Token)
	assert.ErrorIs(t, err, domain.ErrTokenAlreadyUsed)
	assert.Equal(t, 409, errors.From(err).StatusCode)

	stored, ok := h.reg.tokenByValue(issued.Token)
	require.True(t, ok)
	assert.True(t, stored.Used)
	require.NotNil(t, stored.UsedAt)
	assert.Equal(t, h.clock.Now(), *stored.UsedAt)

	assert.ErrorIs(t, h.tokens.Consume(context.Background(), "unknown"), domain.ErrTokenNotFound)
}

func TestTokenManager_Reissue(t *testing.T) {
	t.Run("pending organisation gets a fresh token and keeps the old one", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		first, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
		require.NoError(t, err)

		second, err := h.tokens.Reissue(context.Background(), org.ID)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)

		_, _, err = h.tokens.Validate(context.Background(), first.Token)
		assert.NoError(t, err)
	})

	t.Run("active organisation is refused", func(t *testing.T) {
		h := newHarness(t)
		org := pendingOrganisation(t, h, "Acme Freight")
		require.NoError(t, h.reg.Organisations().MarkProvisioned(context.Background(), org.ID))

		_, err := h.tokens.Reissue(context.Background(), org.ID)
		assert.ErrorIs(t, err, errors.ErrBadRequest)
	})

	t.Run("unknown organisation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.tokens.Reissue(context.Background(), 99)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestTokenManager_DeleteAndList(t *testing.T) {
	h := newHarness(t)
	org := pendingOrganisation(t, h, "Acme Freight")
	used, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
	require.NoError(t, err)
	require.NoError(t, h.tokens.Consume(context.Background(), used.Token))
	expired, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, time.Minute)
	require.NoError(t, err)
	fresh, err := h.tokens.Issue(context.Background(), org.ID, org.EmailContact, 0)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)

	views, err := h.tokens.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, fresh.ID, views[0].ID, "newest first")
	assert.False(t, views[0].IsExpired)
	assert.True(t, views[1].IsExpired)
	assert.True(t, views[2].IsUsed)

	err = h.tokens.Delete(context.Background(), used.ID)
	assert.ErrorIs(t, err, errors.ErrBadRequest)

	require.NoError(t, h.tokens.Delete(context.Background(), expired.ID))
	views, err = h.tokens.List(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	_, err = h.tokens.List(context.Background(), 404)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
