package normalizer

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"certledger/internal/certificate/models"
)

// IDGenerator produces a uniqueId when metadata carries none.
type IDGenerator interface {
	FallbackID(tokenID uint64, rec models.LedgerRecord) string
}

// Mode names a fallback id strategy.
type Mode string

const (
	// ModeRandom mixes wall-clock time and randomness: normalizing the same
	// record twice yields two different ids.
	ModeRandom Mode = "random"

	// ModeStable derives the id from token id, course id and student only.
	ModeStable Mode = "stable"
)

// GeneratorFor returns the generator for mode, defaulting to ModeRandom.
func GeneratorFor(mode Mode) IDGenerator {
	if Mode(strings.ToLower(string(mode))) == ModeStable {
		return StableIDs{}
	}
	return RandomIDs{}
}

// RandomIDs generates CERT-<token>-<base36 millis>-<random> ids.
type RandomIDs struct {
	Now func() time.Time
}

func (g RandomIDs) FallbackID(tokenID uint64, _ models.LedgerRecord) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	stamp := strconv.FormatInt(now().UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper("CERT-" + strconv.FormatUint(tokenID, 10) + "-" + stamp + "-" + random)
}

// StableIDs generates CERT-<token>-<keccak prefix> ids that repeat for the
// same token, course and student.
type StableIDs struct{}

func (StableIDs) FallbackID(tokenID uint64, rec models.LedgerRecord) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strconv.FormatUint(tokenID, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(rec.CourseID))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(rec.Student)))
	digest := hex.EncodeToString(h.Sum(nil))
	return "CERT-" + strconv.FormatUint(tokenID, 10) + "-" + strings.ToUpper(digest[:12])
}
