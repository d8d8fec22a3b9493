package externalapi

import (
	"time"

	"github.com/cloudwego/base64x"
)

const timestampLayout = "20060102150405"

// Timestamp formats t as YYYYMMDDHHMMSS in t's own location.
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Password derives the STK push password from the shortcode, passkey and
// request timestamp.
func Password(shortcode, passkey, timestamp string) string {
	return base64x.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
