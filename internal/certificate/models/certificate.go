package models

import (
	"strconv"
	"strings"
)

// Certificate is the canonical certificate entity. Only the normalizer
// constructs it from ledger data; caches store and return it verbatim.
type Certificate struct {
	ID               string   `json:"id"`
	TokenID          uint64   `json:"tokenId"`
	TokenURI         *string  `json:"tokenURI"`
	MetadataCID      *string  `json:"metadataCID"`
	ImageCID         *string  `json:"imageCID"`
	ImageURL         *string  `json:"imageUrl"`
	Metadata         Metadata `json:"metadata"`
	UniqueID         string   `json:"uniqueId"`
	Student          string   `json:"student"`
	Institution      string   `json:"institution"`
	CourseID         string   `json:"courseId"`
	CourseName       string   `json:"courseName"`
	CompletionDate   string   `json:"completionDate"`
	Grade            int      `json:"grade"`
	IsVerified       bool     `json:"isVerified"`
	IsRevoked        bool     `json:"isRevoked"`
	RevocationReason string   `json:"revocationReason"`
	Version          string   `json:"version"`
	LastUpdateDate   string   `json:"lastUpdateDate"`
	UpdateReason     string   `json:"updateReason"`
}

// IDForToken is the stable external id for a ledger token.
func IDForToken(tokenID uint64) string {
	return strconv.FormatUint(tokenID, 10)
}

// ParseID converts an external id back into a token id.
func ParseID(id string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(id), 10, 64)
}

// WithRevocation returns a copy marked revoked with the given reason.
func (c Certificate) WithRevocation(reason string) Certificate {
	c.IsRevoked = true
	c.RevocationReason = reason
	return c
}

// KeepRevocation carries a prior revocation onto next so a certificate that
// has been observed revoked is never reported unrevoked again. next is
// returned unchanged when prev is nil, a different certificate, or not revoked.
func KeepRevocation(prev *Certificate, next Certificate) Certificate {
	if prev == nil || prev.ID != next.ID || !prev.IsRevoked || next.IsRevoked {
		return next
	}
	return next.WithRevocation(prev.RevocationReason)
}

// Status buckets a certificate for filtering.
func (c Certificate) Status() Status {
	switch {
	case c.IsRevoked:
		return StatusRevoked
	case c.IsVerified:
		return StatusVerified
	default:
		return StatusPending
	}
}

// Status is a display bucket derived from the ledger flags.
type Status string

const (
	StatusAll      Status = "all"
	StatusVerified Status = "verified"
	StatusRevoked  Status = "revoked"
	StatusPending  Status = "pending"
)

// ParseStatus accepts an empty string as StatusAll.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, true
	case StatusVerified:
		return StatusVerified, true
	case StatusRevoked:
		return StatusRevoked, true
	case StatusPending:
		return StatusPending, true
	}
	return "", false
}

// Stats summarizes a certificate collection.
type Stats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Revoked  int `json:"revoked"`
	Pending  int `json:"pending"`
}

// Summarize counts certificates by status.
func Summarize(certs []Certificate) Stats {
	s := Stats{Total: len(certs)}
	for _, c := range certs {
		switch c.Status() {
		case StatusRevoked:
			s.Revoked++
		case StatusVerified:
			s.Verified++
		default:
			s.Pending++
		}
	}
	return s
}
