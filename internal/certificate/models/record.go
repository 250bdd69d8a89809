package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RecordFieldCount is the number of positional fields getCertificate returns.
const RecordFieldCount = 11

// Positions of the getCertificate tuple.
const (
	fieldStudent = iota
	fieldInstitution
	fieldCourseID
	fieldCompletionDate
	fieldGrade
	fieldIsVerified
	fieldIsRevoked
	fieldRevocationReason
	fieldVersion
	fieldLastUpdateDate
	fieldUpdateReason
)

// CompletionDateLayout formats completion dates derived from epoch seconds.
const CompletionDateLayout = "2006-01-02"

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ErrMalformedRecord marks a tuple too short to be a certificate record.
var ErrMalformedRecord = errors.New("malformed certificate record")

// RawRecord is the positional getCertificate tuple as decoded from the
// ledger bridge. Elements are JSON scalars (string, json.Number, float64, bool).
type RawRecord []any

// LedgerRecord is the typed view of a RawRecord.
type LedgerRecord struct {
	Student          string
	Institution      string
	CourseID         string
	CompletionDate   string
	Grade            int
	IsVerified       bool
	IsRevoked        bool
	RevocationReason string
	Version          string
	LastUpdateDate   string
	UpdateReason     string
}

// AcademicRecord is the secondary academicCertificates view used when a
// token has no URI of its own.
type AcademicRecord struct {
	CertificateHash string `json:"certificateHash"`
}

// Parse decodes the tuple. It returns (nil, nil) for an empty tuple or a
// zeroed record (the ledger's answer for an unknown token), and
// ErrMalformedRecord when fewer than RecordFieldCount fields are present.
// Individual malformed fields degrade to zero values.
func (r RawRecord) Parse() (*LedgerRecord, error) {
	if len(r) == 0 {
		return nil, nil
	}
	if len(r) < RecordFieldCount {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRecord, len(r), RecordFieldCount)
	}
	rec := &LedgerRecord{
		Student:          asString(r[fieldStudent]),
		Institution:      asString(r[fieldInstitution]),
		CourseID:         asString(r[fieldCourseID]),
		CompletionDate:   formatEpoch(r[fieldCompletionDate]),
		Grade:            asInt(r[fieldGrade]),
		IsVerified:       asBool(r[fieldIsVerified]),
		IsRevoked:        asBool(r[fieldIsRevoked]),
		RevocationReason: asString(r[fieldRevocationReason]),
		Version:          asString(r[fieldVersion]),
		LastUpdateDate:   asString(r[fieldLastUpdateDate]),
		UpdateReason:     asString(r[fieldUpdateReason]),
	}
	if rec.Student == "" || strings.EqualFold(rec.Student, zeroAddress) {
		return nil, nil
	}
	return rec, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asInt(v any) int {
	n, ok := asInt64(v)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0
	}
	return int(n)
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	}
	n, ok := asInt64(v)
	return ok && n != 0
}

func formatEpoch(v any) string {
	secs, ok := asInt64(v)
	if !ok || secs <= 0 {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format(CompletionDateLayout)
}
