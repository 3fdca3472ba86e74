package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/prom"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TransactionStatus) (*model.Transaction, error)
	Summary(ctx context.Context, userID uuid.UUID) (model.LedgerSummary, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID, typ model.TransactionType) (bool, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type BalanceRepository interface {
	AddBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	DeductBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type DepositConfig struct {
	USSDCode    string
	Description string
	Currency    string
}

type LedgerService struct {
	transactionRepo TransactionRepository
	balances        BalanceRepository
	roles           RoleChecker
	deposit         DepositConfig
}

func NewLedgerService(transactionRepo TransactionRepository, balances BalanceRepository, roles RoleChecker, deposit DepositConfig) *LedgerService {
	return &LedgerService{
		transactionRepo: transactionRepo,
		balances:        balances,
		roles:           roles,
		deposit:         deposit,
	}
}

// Deposit records a pending mobile money deposit. Funds only reach the
// balance once an admin confirms the entry.
func (s *LedgerService) Deposit(ctx context.Context, session model.Session, req model.DepositRequest) (*model.DepositReceipt, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !model.FitsMoney(req.Amount) {
		return nil, fmt.Errorf("%w: %s", ErrAmountPrecision, req.Amount.String())
	}
	payer := strings.TrimSpace(req.PayerName)
	if payer == "" {
		return nil, fmt.Errorf("%w: payer_name", ErrMissingField)
	}

	description := s.deposit.Description
	created, err := s.transactionRepo.Create(ctx, &model.Transaction{
		UserID:        session.UserID,
		Amount:        req.Amount,
		Type:          model.TransactionTypeDeposit,
		Status:        model.TransactionStatusPending,
		PaymentMethod: model.PaymentMethodMomo,
		Description:   &description,
	})
	if err != nil {
		return nil, unavailable("create deposit", err)
	}

	prom.IncLedgerEntry(string(created.Type), string(created.Status))
	logger.Info("deposit requested", "transaction_id", created.ID, "user_id", session.UserID, "amount", created.Amount.String(), "payer", payer)

	return &model.DepositReceipt{
		Transaction:  created,
		Instructions: fmt.Sprintf("Dial %s and send %s %s. Your balance is credited once the payment is confirmed.", s.deposit.USSDCode, created.Amount.StringFixed(2), s.deposit.Currency),
	}, nil
}

// Record inserts an arbitrary entry on behalf of an admin or the pipeline.
// A completed entry moves the balance in the same transaction.
func (s *LedgerService) Record(ctx context.Context, session model.Session, txn model.Transaction) (*model.Transaction, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}
	if txn.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id", ErrMissingField)
	}
	if !txn.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !model.FitsMoney(txn.Amount) {
		return nil, fmt.Errorf("%w: %s", ErrAmountPrecision, txn.Amount.String())
	}
	if !txn.Type.Valid() {
		return nil, fmt.Errorf("%w: transaction type %q", ErrInvalidStatus, txn.Type)
	}
	switch txn.Status {
	case "":
		txn.Status = model.TransactionStatusPending
	case model.TransactionStatusPending, model.TransactionStatusCompleted, model.TransactionStatusFailed:
	default:
		return nil, fmt.Errorf("%w: transaction status %q", ErrInvalidStatus, txn.Status)
	}
	if txn.PaymentMethod == "" {
		txn.PaymentMethod = model.PaymentMethodSystem
	}
	txn.ID = uuid.Nil

	var created *model.Transaction
	err := s.transactionRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.transactionRepo.Create(ctx, &txn)
		if err != nil {
			return unavailable("create transaction", err)
		}
		if created.Status == model.TransactionStatusCompleted {
			return s.applyBalance(ctx, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prom.IncLedgerEntry(string(created.Type), string(created.Status))
	return created, nil
}

func (s *LedgerService) List(ctx context.Context, session model.Session, limit, offset int) ([]*model.Transaction, int64, error) {
	if err := requireUser(session); err != nil {
		return nil, 0, err
	}
	entries, total, err := s.transactionRepo.ListByUser(ctx, session.UserID, limit, offset)
	if err != nil {
		return nil, 0, unavailable("list transactions", err)
	}
	return entries, total, nil
}

// Summary reports confirmed funds as the sum of completed credits only.
func (s *LedgerService) Summary(ctx context.Context, session model.Session) (model.LedgerSummary, error) {
	if err := requireUser(session); err != nil {
		return model.LedgerSummary{}, err
	}
	summary, err := s.transactionRepo.Summary(ctx, session.UserID)
	if err != nil {
		return model.LedgerSummary{}, unavailable("summarize ledger", err)
	}
	return summary, nil
}

// Confirm completes a pending entry and applies it to the balance.
// Confirming a completed entry again changes nothing.
func (s *LedgerService) Confirm(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error) {
	return s.settle(ctx, session, id, model.TransactionStatusCompleted)
}

// Fail rejects a pending entry. The balance is not touched.
func (s *LedgerService) Fail(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error) {
	return s.settle(ctx, session, id, model.TransactionStatusFailed)
}

func (s *LedgerService) settle(ctx context.Context, session model.Session, id uuid.UUID, to model.TransactionStatus) (*model.Transaction, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}

	var result *model.Transaction
	changed := false
	err := s.transactionRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		entry, err := s.transactionRepo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return unavailable("get transaction", err)
		}

		if entry.Status == to {
			result = entry
			return nil
		}
		if entry.Status != model.TransactionStatusPending {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidTransition, entry.Status)
		}

		updated, err := s.transactionRepo.UpdateStatus(ctx, id, model.TransactionStatusPending, to)
		if err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return fmt.Errorf("%w: transaction changed concurrently", ErrInvalidTransition)
			}
			return unavailable("update transaction", err)
		}
		if to == model.TransactionStatusCompleted {
			if err := s.applyBalance(ctx, updated); err != nil {
				return err
			}
		}
		result = updated
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		prom.IncLedgerEntry(string(result.Type), string(result.Status))
		logger.Info("transaction settled", "transaction_id", id, "status", result.Status, "by", session.UserID)
	}
	return result, nil
}

func (s *LedgerService) applyBalance(ctx context.Context, entry *model.Transaction) error {
	var err error
	if entry.Type.IsCredit() {
		err = s.balances.AddBalance(ctx, entry.UserID, entry.Amount)
	} else {
		err = s.balances.DeductBalance(ctx, entry.UserID, entry.Amount)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, repository.ErrProfileNotFound):
		return ErrProfileNotFound
	}
	return unavailable("apply balance", err)
}

// DebitOrder charges the order amount once. It returns nil, nil when the
// order was already charged.
func (s *LedgerService) DebitOrder(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	var created *model.Transaction
	err := s.transactionRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		charged, err := s.transactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeOrderDebit)
		if err != nil {
			return unavailable("check debit", err)
		}
		if charged {
			return nil
		}

		if err := s.balances.DeductBalance(ctx, order.UserID, order.Amount); err != nil {
			switch {
			case errors.Is(err, repository.ErrInsufficientBalance):
				return ErrInsufficientBalance
			case errors.Is(err, repository.ErrProfileNotFound):
				return ErrProfileNotFound
			}
			return unavailable("deduct balance", err)
		}

		description := fmt.Sprintf("Order %s", order.ID)
		created, err = s.transactionRepo.Create(ctx, &model.Transaction{
			UserID:        order.UserID,
			Amount:        order.Amount,
			Type:          model.TransactionTypeOrderDebit,
			Status:        model.TransactionStatusCompleted,
			PaymentMethod: model.PaymentMethodBalance,
			Description:   &description,
			OrderID:       &order.ID,
		})
		if err != nil {
			return unavailable("create debit", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		prom.IncLedgerEntry(string(created.Type), string(created.Status))
	}
	return created, nil
}

// RefundOrder returns a charged order's amount once. Orders that were never
// charged, or were already refunded, yield nil, nil.
func (s *LedgerService) RefundOrder(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	var created *model.Transaction
	err := s.transactionRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		charged, err := s.transactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeOrderDebit)
		if err != nil {
			return unavailable("check debit", err)
		}
		if !charged {
			return nil
		}
		refunded, err := s.transactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeRefund)
		if err != nil {
			return unavailable("check refund", err)
		}
		if refunded {
			return nil
		}

		description := fmt.Sprintf("Refund for order %s", order.ID)
		created, err = s.transactionRepo.Create(ctx, &model.Transaction{
			UserID:        order.UserID,
			Amount:        order.Amount,
			Type:          model.TransactionTypeRefund,
			Status:        model.TransactionStatusCompleted,
			PaymentMethod: model.PaymentMethodBalance,
			Description:   &description,
			OrderID:       &order.ID,
		})
		if err != nil {
			return unavailable("create refund", err)
		}
		return s.applyBalance(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		prom.IncLedgerEntry(string(created.Type), string(created.Status))
	}
	return created, nil
}

// GrantReferralBonus credits the referrer. It must run inside the
// transaction that inserted the referral.
func (s *LedgerService) GrantReferralBonus(ctx context.Context, referrerID, referredID uuid.UUID, amount decimal.Decimal) (*model.Transaction, error) {
	description := fmt.Sprintf("Referral bonus for inviting %s", referredID)
	created, err := s.transactionRepo.Create(ctx, &model.Transaction{
		UserID:        referrerID,
		Amount:        amount,
		Type:          model.TransactionTypeReferralBonus,
		Status:        model.TransactionStatusCompleted,
		PaymentMethod: model.PaymentMethodSystem,
		Description:   &description,
	})
	if err != nil {
		return nil, unavailable("create referral bonus", err)
	}
	if err := s.applyBalance(ctx, created); err != nil {
		return nil, err
	}
	prom.IncLedgerEntry(string(created.Type), string(created.Status))
	return created, nil
}
