package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports/mocks"
)

// =============================================================================
// Normalizer Test Suite
// =============================================================================

type NormalizerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	ledger     *mocks.MockLedgerReader
	resolver   *mocks.MockMetadataResolver
	normalizer *Normalizer
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedgerReader(s.ctrl)
	s.resolver = mocks.NewMockMetadataResolver(s.ctrl)
	s.normalizer = New(s.ledger, s.resolver)
}

func record() models.RawRecord {
	return models.RawRecord{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
		"BC101",
		json.Number("1700000000"),
		json.Number("95"),
		true,
		false,
		"",
		json.Number("2"),
		json.Number("1700001000"),
		"initial",
	}
}

func (s *NormalizerSuite) expectRecord(tokenID uint64) {
	s.ledger.EXPECT().GetCertificate(gomock.Any(), tokenID).Return(record(), nil)
}

func (s *NormalizerSuite) TestMetadataFieldsWin() {
	ctx := context.Background()
	meta := models.Metadata{
		"uniqueId":   "CERT-EXPLICIT",
		"courseName": "Blockchain Fundamentals",
		"image":      "ipfs://bafyimg",
	}
	s.expectRecord(7)
	s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(7)).Return("ipfs://bafymeta", nil)
	s.resolver.EXPECT().Resolve(gomock.Any(), "bafymeta").Return(meta, nil)
	s.resolver.EXPECT().ImageURLFor(meta, "bafyimg").Return("https://gw/ipfs/bafyimg")

	cert, err := s.normalizer.Normalize(ctx, 7)
	s.Require().NoError(err)
	s.Require().NotNil(cert)

	s.Equal("7", cert.ID)
	s.Equal(uint64(7), cert.TokenID)
	s.Equal("ipfs://bafymeta", *cert.TokenURI)
	s.Equal("bafymeta", *cert.MetadataCID)
	s.Equal("bafyimg", *cert.ImageCID)
	s.Equal("https://gw/ipfs/bafyimg", *cert.ImageURL)
	s.Equal("CERT-EXPLICIT", cert.UniqueID)
	s.Equal("Blockchain Fundamentals", cert.CourseName)
	s.Equal("2023-11-14", cert.CompletionDate)
	s.Equal(95, cert.Grade)
	s.True(cert.IsVerified)
	s.Equal("initial", cert.UpdateReason)
}

func (s *NormalizerSuite) TestAcademicHashFallback() {
	ctx := context.Background()
	meta := models.Metadata{
		"name": "Smart Contracts",
		"attributes": []any{
			map[string]any{"trait_type": "Unique ID", "value": "CERT-TRAIT"},
		},
	}
	s.expectRecord(8)
	s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(8)).Return("", nil)
	s.ledger.EXPECT().AcademicCertificate(gomock.Any(), uint64(8)).
		Return(models.AcademicRecord{CertificateHash: "bafyacademic"}, nil)
	s.resolver.EXPECT().Resolve(gomock.Any(), "bafyacademic").Return(meta, nil)
	s.resolver.EXPECT().ImageURLFor(meta, "").Return("")

	cert, err := s.normalizer.Normalize(ctx, 8)
	s.Require().NoError(err)
	s.Equal("bafyacademic", *cert.TokenURI)
	s.Equal("CERT-TRAIT", cert.UniqueID)
	s.Equal("Smart Contracts", cert.CourseName)
	s.Nil(cert.ImageCID)
	s.Nil(cert.ImageURL)
}

func (s *NormalizerSuite) TestMissingMetadataDegrades() {
	ctx := context.Background()

	s.Run("resolver failure", func() {
		s.expectRecord(9)
		s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(9)).Return("ipfs://bafygone", nil)
		s.resolver.EXPECT().Resolve(gomock.Any(), "bafygone").Return(nil, errors.New("gateway down"))

		cert, err := s.normalizer.Normalize(ctx, 9)
		s.Require().NoError(err)
		s.Nil(cert.Metadata)
		s.Nil(cert.ImageURL)
		s.Nil(cert.ImageCID)
		s.NotEmpty(cert.UniqueID)
		s.Equal("Course BC101", cert.CourseName)
	})

	s.Run("no uri anywhere", func() {
		s.expectRecord(10)
		s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(10)).Return("", errors.New("reverted"))
		s.ledger.EXPECT().AcademicCertificate(gomock.Any(), uint64(10)).Return(models.AcademicRecord{}, errors.New("reverted"))

		cert, err := s.normalizer.Normalize(ctx, 10)
		s.Require().NoError(err)
		s.Nil(cert.TokenURI)
		s.Nil(cert.MetadataCID)
		s.Nil(cert.Metadata)
		s.NotEmpty(cert.UniqueID)
	})
}

func (s *NormalizerSuite) TestFallbackIDIsNotReproducible() {
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		s.expectRecord(11)
		s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(11)).Return("", nil)
		s.ledger.EXPECT().AcademicCertificate(gomock.Any(), uint64(11)).Return(models.AcademicRecord{}, nil)
	}

	first, err := s.normalizer.Normalize(ctx, 11)
	s.Require().NoError(err)
	second, err := s.normalizer.Normalize(ctx, 11)
	s.Require().NoError(err)

	s.NotEqual(first.UniqueID, second.UniqueID)
	s.Contains(first.UniqueID, "CERT-11-")

	first.UniqueID, second.UniqueID = "", ""
	s.Equal(*first, *second)
}

func (s *NormalizerSuite) TestStableModeIsReproducible() {
	ctx := context.Background()
	n := New(s.ledger, s.resolver, WithIDGenerator(GeneratorFor(ModeStable)))
	for i := 0; i < 2; i++ {
		s.expectRecord(12)
		s.ledger.EXPECT().TokenURI(gomock.Any(), uint64(12)).Return("", nil)
		s.ledger.EXPECT().AcademicCertificate(gomock.Any(), uint64(12)).Return(models.AcademicRecord{}, nil)
	}

	first, err := n.Normalize(ctx, 12)
	s.Require().NoError(err)
	second, err := n.Normalize(ctx, 12)
	s.Require().NoError(err)
	s.Equal(first.UniqueID, second.UniqueID)
}

func (s *NormalizerSuite) TestAbsentAndMalformedRecords() {
	ctx := context.Background()

	s.Run("empty tuple is skipped", func() {
		s.ledger.EXPECT().GetCertificate(gomock.Any(), uint64(20)).Return(models.RawRecord{}, nil)
		cert, err := s.normalizer.Normalize(ctx, 20)
		s.NoError(err)
		s.Nil(cert)
	})

	s.Run("short tuple is an error", func() {
		s.ledger.EXPECT().GetCertificate(gomock.Any(), uint64(21)).Return(record()[:4], nil)
		_, err := s.normalizer.Normalize(ctx, 21)
		s.ErrorIs(err, models.ErrMalformedRecord)
	})

	s.Run("ledger failure propagates", func() {
		s.ledger.EXPECT().GetCertificate(gomock.Any(), uint64(22)).Return(nil, errors.New("bridge down"))
		_, err := s.normalizer.Normalize(ctx, 22)
		s.Error(err)
	})
}

func TestStableIDs(t *testing.T) {
	rec := models.LedgerRecord{CourseID: "C1", Student: "0xABC"}
	a := StableIDs{}.FallbackID(1, rec)
	b := StableIDs{}.FallbackID(1, models.LedgerRecord{CourseID: "C1", Student: "0xabc"})
	c := StableIDs{}.FallbackID(2, rec)

	if a != b {
		t.Fatalf("student address case changed the id: %s != %s", a, b)
	}
	if a == c {
		t.Fatalf("different tokens share an id: %s", a)
	}
}
