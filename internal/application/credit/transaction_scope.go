package credit

import (
	"context"

	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/credit"
)

// TransactionScope provides transactional access to the ledger repositories.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories extends the team ledger repositories with the
// personal ledger ones. A deduction may touch both in one unit of work.
type TransactionalRepositories interface {
	teamapp.Repositories
	BetaQuotaRepo() credit.BetaQuotaRepository
	ShortfallRepo() credit.RefundShortfallRepository
}
