package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry records one manual pipeline action: who triggered which
// aggregation, ingestion or confirmation run, from where.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	BrandID       string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger is the sink the admin handlers write through.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
