package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() RawRecord {
	return RawRecord{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
		"CS101",
		json.Number("1700000000"),
		json.Number("92"),
		true,
		false,
		"",
		json.Number("1"),
		json.Number("1700000500"),
		"",
	}
}

func TestRawRecordParse(t *testing.T) {
	t.Run("valid tuple", func(t *testing.T) {
		rec, err := validRaw().Parse()
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "CS101", rec.CourseID)
		assert.Equal(t, "2023-11-14", rec.CompletionDate)
		assert.Equal(t, 92, rec.Grade)
		assert.True(t, rec.IsVerified)
		assert.False(t, rec.IsRevoked)
		assert.Equal(t, "1", rec.Version)
		assert.Equal(t, "1700000500", rec.LastUpdateDate)
	})

	t.Run("empty tuple is absent", func(t *testing.T) {
		rec, err := RawRecord{}.Parse()
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("zeroed record is absent", func(t *testing.T) {
		raw := validRaw()
		raw[0] = zeroAddress
		rec, err := raw.Parse()
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("short tuple is malformed", func(t *testing.T) {
		_, err := validRaw()[:5].Parse()
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("malformed fields degrade to defaults", func(t *testing.T) {
		raw := validRaw()
		raw[3] = "not-a-date"
		raw[4] = map[string]any{"x": 1}
		raw[5] = "yes please"
		rec, err := raw.Parse()
		require.NoError(t, err)
		assert.Empty(t, rec.CompletionDate)
		assert.Zero(t, rec.Grade)
		assert.False(t, rec.IsVerified)
	})

	t.Run("float and string scalars", func(t *testing.T) {
		raw := validRaw()
		raw[2] = float64(7)
		raw[4] = "88"
		raw[6] = float64(1)
		rec, err := raw.Parse()
		require.NoError(t, err)
		assert.Equal(t, "7", rec.CourseID)
		assert.Equal(t, 88, rec.Grade)
		assert.True(t, rec.IsRevoked)
	})
}

func TestKeepRevocation(t *testing.T) {
	revoked := Certificate{ID: "1", IsRevoked: true, RevocationReason: "fraud"}
	fresh := Certificate{ID: "1", CourseName: "Updated"}

	got := KeepRevocation(&revoked, fresh)
	assert.True(t, got.IsRevoked)
	assert.Equal(t, "fraud", got.RevocationReason)
	assert.Equal(t, "Updated", got.CourseName)

	assert.Equal(t, fresh, KeepRevocation(nil, fresh))
	assert.Equal(t, fresh, KeepRevocation(&Certificate{ID: "2", IsRevoked: true}, fresh))

	ledgerReason := Certificate{ID: "1", IsRevoked: true, RevocationReason: "ledger reason"}
	assert.Equal(t, ledgerReason, KeepRevocation(&revoked, ledgerReason))
}

func TestMetadataAccessors(t *testing.T) {
	var doc Metadata
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": " Solidity Basics ",
		"grade": 90,
		"attributes": [
			{"trait_type": "Certificate ID", "value": "CERT-77"},
			{"trait_type": "Score", "value": 91},
			"garbage",
			{"value": "no trait"}
		]
	}`), &doc))

	assert.Equal(t, "Solidity Basics", doc.String("name"))
	assert.Equal(t, "90", doc.String("grade"))
	assert.Equal(t, "", doc.String("attributes"))
	assert.Len(t, doc.Attributes(), 2)
	assert.Equal(t, "CERT-77", doc.Trait("unique id", "certificate id"))
	assert.Equal(t, "91", doc.Trait("score"))
	assert.Empty(t, Metadata(nil).String("name"))
}

func TestFilter(t *testing.T) {
	certs := []Certificate{
		{ID: "1", UniqueID: "CERT-A", CourseName: "Blockchain 101", IsVerified: true},
		{ID: "2", UniqueID: "CERT-B", CourseName: "Rust", IsRevoked: true},
		{ID: "3", UniqueID: "CERT-C", CourseName: "Blockchain Advanced"},
	}

	assert.Len(t, Filter{}.Apply(certs), 3)
	assert.Len(t, Filter{Query: "blockchain"}.Apply(certs), 2)
	assert.Len(t, Filter{Query: "blockchain advanced"}.Apply(certs), 1)
	assert.Len(t, Filter{Status: StatusRevoked}.Apply(certs), 1)
	assert.Len(t, Filter{Query: "cert-a", Status: StatusVerified}.Apply(certs), 1)
	assert.Empty(t, Filter{Query: "cert-a", Status: StatusPending}.Apply(certs))
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]Certificate{
		{IsVerified: true},
		{IsVerified: true, IsRevoked: true},
		{},
	})
	assert.Equal(t, Stats{Total: 3, Verified: 1, Revoked: 1, Pending: 1}, stats)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("")
	assert.True(t, ok)
	assert.Equal(t, StatusAll, s)

	s, ok = ParseStatus(" Revoked ")
	assert.True(t, ok)
	assert.Equal(t, StatusRevoked, s)

	_, ok = ParseStatus("archived")
	assert.False(t, ok)
}

func TestContentAddress(t *testing.T) {
	assert.Equal(t, "bafy123", ContentAddress("ipfs://bafy123"))
	assert.Equal(t, "bafy123/meta.json", ContentAddress("IPFS://ipfs/bafy123/meta.json"))
	assert.Equal(t, "bafy123", ContentAddress("  bafy123 "))
	assert.Empty(t, ContentAddress(""))
}

func TestMetadataImageCID(t *testing.T) {
	assert.Equal(t, "bafyimg", Metadata{"image": "ipfs://bafyimg"}.ImageCID())
	assert.Equal(t, "bafyimg/a.png", Metadata{"image": "https://gw.example/ipfs/bafyimg/a.png"}.ImageCID())
	assert.Empty(t, Metadata{"image": "https://cdn.example/a.png"}.ImageCID())
	assert.Empty(t, Metadata{}.ImageCID())
}
