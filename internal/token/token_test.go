package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")

	raw, exp, id, err := a.Mint(AudienceAIPT, MintOptions{SessionID: "sess-1", Generation: 1})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.True(t, exp.After(time.Now()))
	require.NotEmpty(t, id)

	claims, err := a.Verify(raw, VerifyOptions{Audience: AudienceAIPT, SessionID: "sess-1", CurrentGeneration: 1})
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.SessionID)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")
	raw, _, _, err := a.Mint(AudienceAIPT, MintOptions{SessionID: "sess-1", Generation: 1})
	require.NoError(t, err)

	_, err = a.Verify(raw, VerifyOptions{Audience: AudienceIST, SessionID: "sess-1", CurrentGeneration: 1})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindTokenWrongAudience, se.Kind)
}

func TestVerifyRejectsWrongSession(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")
	raw, _, _, err := a.Mint(AudienceAIPT, MintOptions{SessionID: "sess-A", Generation: 1})
	require.NoError(t, err)

	_, err = a.Verify(raw, VerifyOptions{Audience: AudienceAIPT, SessionID: "sess-B", CurrentGeneration: 1})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindTokenWrongSession, se.Kind)
}

func TestVerifyRejectsStaleGeneration(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")
	raw, _, _, err := a.Mint(AudienceAIPT, MintOptions{SessionID: "sess-1", Generation: 1})
	require.NoError(t, err)

	// The session transitioned out of Active, bumping its generation.
	_, err = a.Verify(raw, VerifyOptions{Audience: AudienceAIPT, SessionID: "sess-1", CurrentGeneration: 2})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindTokenExpired, se.Kind)
}

func TestOneShotTokenRejectedAfterConsume(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")
	raw, _, id, err := a.Mint(AudienceUPT, MintOptions{SessionID: "sess-1", Generation: 1, OneShot: true})
	require.NoError(t, err)

	_, err = a.Verify(raw, VerifyOptions{Audience: AudienceUPT, SessionID: "sess-1", CurrentGeneration: 1})
	require.NoError(t, err)

	a.Consume(id)

	_, err = a.Verify(raw, VerifyOptions{Audience: AudienceUPT, SessionID: "sess-1", CurrentGeneration: 1})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindTokenAlreadyUsed, se.Kind)
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	a := New("0123456789abcdef0123456789abcdef")
	_, err := a.Verify("", VerifyOptions{Audience: AudienceAIPT})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindTokenMissing, se.Kind)
}
