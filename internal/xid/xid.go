package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Number builds a short human-readable document number, e.g. SV-20250901-3FA2C1.
func Number(prefix string, at time.Time) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s-%06d", prefix, at.Format("20060102"), at.UnixNano()%1000000)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
