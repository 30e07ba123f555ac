package repository

import (
	"context"
	"io"

	"fluid-presale/internal/domain/entity"
)

// ReceiptRepository keeps settlement records of successful purchases.
type ReceiptRepository interface {
	// SaveReceipt stores the receipt under its transaction hash.
	SaveReceipt(ctx context.Context, receipt entity.Receipt) error

	// GetReceipt retrieves a receipt by transaction hash.
	GetReceipt(ctx context.Context, txHash string) (entity.Receipt, bool, error)
}

// SessionRepository holds live sessions. Implementations close a session when it
// is evicted or deleted.
type SessionRepository[S io.Closer] interface {
	// GetSession returns the session and extends its lifetime.
	GetSession(ctx context.Context, id string) (S, bool, error)

	// SetSession stores a session under id.
	SetSession(ctx context.Context, id string, session S) error

	// DeleteSession removes and closes the session.
	DeleteSession(ctx context.Context, id string) error
}
