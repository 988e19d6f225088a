package apierrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAttachesTableDefaultStatus(t *testing.T) {
	err := New(KindNotFound, "missing")
	require.Equal(t, http.StatusNotFound, err.HTTPStatus)
	require.Equal(t, "missing", err.Message)
}

func TestWrapPreservesUnderlyingCauseForUnwrapOnly(t *testing.T) {
	cause := errors.New("db connection refused")
	err := Wrap(KindInternal, "store failure", cause)

	require.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "db connection refused")
}

func TestAsExtractsServiceErrorThroughWrapping(t *testing.T) {
	se := New(KindRateLimited, "too many requests")
	wrapped := errors.New("handler: " + se.Error())
	require.Nil(t, As(wrapped), "plain string-wrapped error is not a ServiceError chain")

	chained := errorsJoin(se)
	require.Equal(t, se, As(chained))
}

func errorsJoin(err error) error {
	return errWrap{err}
}

type errWrap struct{ err error }

func (e errWrap) Error() string { return e.err.Error() }
func (e errWrap) Unwrap() error { return e.err }

func TestHTTPStatusForDefaultsOnUnknownError(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFor(errors.New("boom")))
	require.Equal(t, http.StatusConflict, HTTPStatusFor(New(KindInvalidState, "nope")))
}

func TestWithDetailsChains(t *testing.T) {
	err := New(KindValidationFailed, "bad field").WithDetails("field", "email").WithDetails("reason", "required")
	require.Equal(t, "email", err.Details["field"])
	require.Equal(t, "required", err.Details["reason"])
}

func TestChainBrokenCarriesServerTailNotRejectedEvent(t *testing.T) {
	err := ChainBroken(42, "deadbeef")
	require.Equal(t, int64(42), err.Details["seq"])
	require.Equal(t, "deadbeef", err.Details["hash"])
	require.Equal(t, http.StatusConflict, err.HTTPStatus)
}

func TestTokenWrongAudienceCarriesWantGot(t *testing.T) {
	err := TokenWrongAudience("ist", "aipt")
	require.Equal(t, "ist", err.Details["want"])
	require.Equal(t, "aipt", err.Details["got"])
	require.Equal(t, http.StatusForbidden, err.HTTPStatus)
}

func TestProviderUnavailableWrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := ProviderUnavailable(cause)
	require.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	require.ErrorIs(t, err, cause)
}
