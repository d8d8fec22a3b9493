package externalapi

import (
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp(time.Date(2024, time.March, 5, 7, 8, 9, 999_000_000, time.UTC))

	assert.Equal(t, "20240305070809", ts)
	assert.Regexp(t, regexp.MustCompile(`^\d{14}$`), ts)
	assert.Regexp(t, regexp.MustCompile(`^\d{14}$`), Timestamp(time.Now()))
}

func TestTimestampUsesLocation(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	instant := time.Date(2024, time.December, 31, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "20241231223000", Timestamp(instant))
	assert.Equal(t, "20250101013000", Timestamp(instant.In(eat)))
}

func TestPasswordIsDeterministic(t *testing.T) {
	a := Password("174379", "passkey", "20240305070809")
	b := Password("174379", "passkey", "20240305070809")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Password("174380", "passkey", "20240305070809"))
	assert.NotEqual(t, a, Password("174379", "passkez", "20240305070809"))
	assert.NotEqual(t, a, Password("174379", "passkey", "20240305070810"))
}

func TestPasswordRoundTrip(t *testing.T) {
	const shortcode, passkey, ts = "174379", "bfb279f9aa9bdbcf158e97dd71a467cd", "20240305070809"

	decoded, err := base64.StdEncoding.DecodeString(Password(shortcode, passkey, ts))
	require.NoError(t, err)

	rest, ok := strings.CutPrefix(string(decoded), shortcode+passkey)
	require.True(t, ok)
	assert.Equal(t, ts, rest)
}
