package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns "session_<unixMillis>_<7 base36 chars>".
func NewSessionID(now time.Time) string {
	var sb strings.Builder
	limit := big.NewInt(int64(len(base36)))
	for i := 0; i < 7; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			sb.WriteByte(base36[time.Now().UnixNano()%int64(len(base36))])
			continue
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), sb.String())
}
