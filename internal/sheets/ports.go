package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound ledger-mirror adapters.
type (
	// InstanceWriter appends a transaction instance to the mirrored ledger.
	InstanceWriter interface {
		Append(ctx context.Context, i core.TransactionInstance) (rowRef string, err error)
	}
)
