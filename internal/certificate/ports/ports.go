package ports

import (
	"context"

	"certledger/internal/certificate/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks LedgerReader,LedgerWriter,LedgerGateway,PendingTx,MetadataResolver,CacheStore,Signer,SignerProvider

// LedgerReader is the read side of the certificate contract.
// Errors carry a structured kind (see ledger.KindOf) rather than free text.
type LedgerReader interface {
	GetCertificate(ctx context.Context, tokenID uint64) (models.RawRecord, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	AcademicCertificate(ctx context.Context, tokenID uint64) (models.AcademicRecord, error)
	BalanceOf(ctx context.Context, owner string) (uint64, error)
	TokenOfOwnerByIndex(ctx context.Context, owner string, index uint64) (uint64, error)
	// GetRecentCertificates may fail with an out-of-bounds kind, which callers
	// treat as "no recent certificates".
	GetRecentCertificates(ctx context.Context, limit int) ([]uint64, error)
}

// LedgerWriter is a write-capable handle bound to a signer.
type LedgerWriter interface {
	RevokeCertificate(ctx context.Context, tokenID uint64, reason string) (PendingTx, error)
}

// LedgerGateway reads the contract and binds signers for writes.
type LedgerGateway interface {
	LedgerReader
	Connect(signer Signer) LedgerWriter
}

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// PendingTx is a submitted but not yet confirmed transaction.
type PendingTx interface {
	Hash() string
	// Wait blocks until the transaction is confirmed or ctx is done.
	Wait(ctx context.Context) (*Receipt, error)
}

// MetadataResolver resolves content-addressed metadata documents.
type MetadataResolver interface {
	// Resolve returns (nil, nil) when the document is empty.
	Resolve(ctx context.Context, cid string) (models.Metadata, error)
	// ImageURLFor returns "" when the document names no image.
	ImageURLFor(meta models.Metadata, imageCID string) string
}

// CacheStore is a keyed blob store with a backend-defined freshness policy.
// Get returns sentinel.ErrNotFound on a miss or an expired entry.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Signer is a capability that authorizes ledger writes.
type Signer interface {
	Address() string
	Token(ctx context.Context) (string, error)
}

// SignerProvider yields the signer of the current operator session.
type SignerProvider interface {
	GetSigner(ctx context.Context) (Signer, error)
}
