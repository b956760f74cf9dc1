package tokenware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyfuncOptionsRefreshErrorHandlerIsSafe(t *testing.T) {
	opts := keyfuncOptions(nil)
	require.NotNil(t, opts.RefreshErrorHandler)
	require.NotPanics(t, func() {
		opts.RefreshErrorHandler(errors.New("refresh failed"))
	})

	require.Equal(t, time.Hour, opts.RefreshInterval)
	require.Equal(t, 5*time.Minute, opts.RefreshRateLimit)
	require.Equal(t, 10*time.Second, opts.RefreshTimeout)
	require.True(t, opts.RefreshUnknownKID)
}

func TestGetExtractorsParsesLookupChain(t *testing.T) {
	require.Len(t, GetExtractors("header:Authorization"), 1)
	require.Len(t, GetExtractors("header:Authorization,query:jwt,param:token,cookie:session"), 4)
	require.Len(t, GetExtractors(" header : Authorization , cookie : session "), 2)
	require.Empty(t, GetExtractors("body:nope"))
}
