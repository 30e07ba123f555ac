package celebration

import (
	"fluid-presale/internal/domain/entity"
	domainService "fluid-presale/internal/domain/service"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.Celebrator = (*LogCelebrator)(nil)

// LogCelebrator announces completed purchases in the service log.
type LogCelebrator struct {
	logger *zap.Logger
}

// NewLogCelebrator creates a celebrator that writes to logger.
func NewLogCelebrator(logger *zap.Logger) *LogCelebrator {
	return &LogCelebrator{logger: logger.Named("Celebration")}
}

// Celebrate logs the receipt of a successful purchase.
func (c *LogCelebrator) Celebrate(receipt entity.Receipt) {
	c.logger.Info("Purchase completed",
		zap.String("txHash", receipt.TxHash),
		zap.String("currency", receipt.CurrencyID),
		zap.String("amount", receipt.Amount.String()),
		zap.String("contributed", receipt.Contributed.StringFixed(2)),
		zap.String("tokens", receipt.Tokens),
		zap.String("wallet", receipt.Wallet),
	)
}
