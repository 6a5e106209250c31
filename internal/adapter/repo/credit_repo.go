package repo

import (
	"context"
	"fmt"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger.
type CreditLedgerPG struct {
	sql infra.SQLExecutor
}

func NewCreditLedger(sql infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{sql: sql}
}

// Balance returns 0 for owners without a balance row.
func (l *CreditLedgerPG) Balance(ctx context.Context, ownerID, creditType string) (int, error) {
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QSelectCreditBalance, ownerID, creditType).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Consume debits one credit keyed by (refType, refID). A reference that was
// already charged returns false without error.
func (l *CreditLedgerPG) Consume(ctx context.Context, ownerID, creditType, refType, refID string) (bool, error) {
	var balance int
	err := l.sql.QueryRow(ctx, sqlinline.QConsumeCredit, ownerID, creditType, refType, refID).Scan(&balance)
	switch {
	case err == nil:
		return true, nil
	case infra.IsUniqueViolation(err):
		return false, nil
	case infra.IsNoRows(err):
		return false, domain.ErrQuotaExceeded
	default:
		return false, fmt.Errorf("consume credit: %w", err)
	}
}

// Grant adds amount credits and returns the new balance.
func (l *CreditLedgerPG) Grant(ctx context.Context, ownerID, creditType string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive: %w", domain.ErrValidation)
	}
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QGrantCredits, ownerID, creditType, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return balance, nil
}
