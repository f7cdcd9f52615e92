package ledger

import (
	"context" // Context for DB operations
	"errors"  // Error values

	"github.com/pramodshanmugam/perksway/internal/domain" // Domain models
	"github.com/pramodshanmugam/perksway/internal/utils"  // Amount validation

	"github.com/shopspring/decimal" // Fixed-point decimal arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
)

// Ledger errors
var (
	ErrInvalidAmount       = utils.ErrInvalidAmount
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Service owns per-(owner, class) wallet balances and the append-only
// transaction history behind them. The stored balance is authoritative; the
// transaction log is the audit trail, and Reconcile checks they agree.
type Service struct {
	db *gorm.DB
}

// NewService creates a ledger service on top of a gorm DB handle
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx returns a copy of the service bound to an open transaction, so a
// workflow can make ledger mutations inside its own atomic scope.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// GetOrCreateWallet returns the wallet for (ownerID, classID), creating it
// with a zero balance on first use. Idempotent: the unique (owner, class)
// index guarantees at most one wallet per pair.
func (s *Service) GetOrCreateWallet(ctx context.Context, ownerID, classID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).
		Where(domain.Wallet{OwnerID: ownerID, ClassID: classID}).
		Attrs(domain.Wallet{Balance: decimal.Zero}).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Wallet returns the wallet for (ownerID, classID), or ErrWalletNotFound
func (s *Service) Wallet(ctx context.Context, ownerID, classID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND class_id = ?", ownerID, classID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Balance returns the current balance for (ownerID, classID), or
// ErrWalletNotFound when no credit has ever created the wallet
func (s *Service) Balance(ctx context.Context, ownerID, classID uint) (decimal.Decimal, error) {
	wallet, err := s.Wallet(ctx, ownerID, classID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// Credit increases a wallet balance and appends a credit transaction. The
// balance update and the transaction row commit atomically.
func (s *Service) Credit(ctx context.Context, walletID uint, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, err
	}
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Wallet{}).
			Where("id = ?", walletID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWalletNotFound
		}
		// Append the audit record
		t := domain.Transaction{
			WalletID:    walletID,
			Amount:      amount,
			Type:        domain.TransactionTypeCredit,
			Description: description,
		}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		return tx.First(&wallet, walletID).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"amount":    amount.String(),
		"type":      domain.TransactionTypeCredit,
	}).Info("Ledger credit")
	return &wallet, nil
}

// Debit decreases a wallet balance and appends a debit transaction. The
// balance check and mutation are one conditional UPDATE, so concurrent
// debits on the same wallet serialize on the row and only those covered by
// the balance at commit time succeed.
func (s *Service) Debit(ctx context.Context, walletID uint, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, err
	}
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Wallet{}).
			Where("id = ? AND balance >= ?", walletID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Distinguish a missing wallet from a shortfall
			if err := tx.First(&domain.Wallet{}, walletID).Error; errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			} else if err != nil {
				return err
			}
			return ErrInsufficientBalance
		}
		// Append the audit record
		t := domain.Transaction{
			WalletID:    walletID,
			Amount:      amount,
			Type:        domain.TransactionTypeDebit,
			Description: description,
		}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		return tx.First(&wallet, walletID).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"amount":    amount.String(),
		"type":      domain.TransactionTypeDebit,
	}).Info("Ledger debit")
	return &wallet, nil
}

// History returns a page of the wallet's transactions, newest first, along
// with the total count for pagination.
func (s *Service) History(ctx context.Context, walletID uint, page, pageSize int) ([]domain.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("wallet_id = ?", walletID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// Reconcile folds the transaction log of a wallet and compares the result
// to the stored balance. The two must always agree because every balance
// mutation commits together with its transaction row.
func (s *Service) Reconcile(ctx context.Context, walletID uint) (stored, derived decimal.Decimal, ok bool, err error) {
	var wallet domain.Wallet
	if err = s.db.WithContext(ctx).First(&wallet, walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrWalletNotFound
		}
		return
	}
	var txs []domain.Transaction
	if err = s.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order("id asc").Find(&txs).Error; err != nil {
		return
	}
	derived = decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case domain.TransactionTypeCredit:
			derived = derived.Add(t.Amount)
		case domain.TransactionTypeDebit:
			derived = derived.Sub(t.Amount)
		}
	}
	stored = wallet.Balance
	ok = stored.Equal(derived)
	return
}
