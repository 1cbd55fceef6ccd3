package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// OfflineBackend is the deterministic backend of last resort. It is always
// available and always succeeds, which guarantees the gateway can serve every
// request even with no network and no credentials. The output is a valid
// empty review payload so downstream parsing succeeds; it also doubles as a
// demo mode.
type OfflineBackend struct{}

// NewOfflineBackend creates the deterministic offline backend.
func NewOfflineBackend() *OfflineBackend { return &OfflineBackend{} }

func (b *OfflineBackend) Name() string { return BackendOffline }

func (b *OfflineBackend) IsAvailable() bool { return true }

func (b *OfflineBackend) Generate(_ context.Context, req Request) (string, error) {
	// Deterministic per prompt: the same input always yields the same output.
	h := sha256.New()
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	digest := hex.EncodeToString(h.Sum(nil))[:12]

	return fmt.Sprintf(`{"issues": [], "summary": "offline backend response %s: no automated analysis performed"}`, digest), nil
}
