package download

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// IdentifierLength is the number of hex characters in a generated name.
const IdentifierLength = 12

const identifierTimeLayout = "20060102150405"

// Identifier derives the file name stem for a download of keyword at the
// given instant: the first 12 hex characters of MD5(keyword + timestamp),
// with the timestamp at one-second resolution. It does not depend on file
// content. Two downloads of the same keyword within the same second share
// an identifier; Finalize refuses to overwrite in that case.
func Identifier(keyword string, at time.Time) string {
	sum := md5.Sum([]byte(keyword + at.Format(identifierTimeLayout)))
	return hex.EncodeToString(sum[:])[:IdentifierLength]
}
