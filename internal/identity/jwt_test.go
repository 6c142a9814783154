package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/testutil"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")

var profile = Profile{
	ExternalID: "firebase|abc123",
	Email:      "sam@example.com",
	Name:       "Sam",
	PictureURL: "https://example.com/sam.png",
}

func TestVerify(t *testing.T) {
	testutil.Given(t, "a freshly issued token", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(profile, time.Hour)
		require.NoError(t, err)

		testutil.Then(t, "the profile round-trips", func(t *testing.T) {
			got, err := jwtService.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, profile, got)
		})
	})

	testutil.Given(t, "an expired token", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(profile, -time.Hour)
		require.NoError(t, err)

		testutil.Then(t, "verification reports expiry", func(t *testing.T) {
			_, err := jwtService.Verify(token)
			require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
		})
	})

	testutil.Given(t, "garbage", func(t *testing.T) {
		_, err := jwtService.Verify("invalid-token-string")
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})

	testutil.Given(t, "a token for another audience", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "test-issuer", "someone-else")
		token, err := other.GenerateAccessToken(profile, time.Hour)
		require.NoError(t, err)

		_, err = jwtService.Verify(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	testutil.Given(t, "a token signed with another key", func(t *testing.T) {
		other := NewJWTService("other-key", "test-issuer", "test-audience")
		token, err := other.GenerateAccessToken(profile, time.Hour)
		require.NoError(t, err)

		_, err = jwtService.Verify(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	testutil.Given(t, "a token without subject", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken(Profile{Email: "x@example.com"}, time.Hour)
		require.NoError(t, err)

		_, err = jwtService.Verify(token)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token subject is required"))
	})
}
