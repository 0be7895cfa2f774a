package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"inventory/internal/db"
	"inventory/internal/models"
	"inventory/internal/money"
	"inventory/internal/notify"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type CurrencyService struct {
	txRunner        db.TxRunner
	currencies      CurrencyStore
	balances        BalanceStore
	transactions    TransactionStore
	gate            Gate
	notifier        Notifier
	policies        Policies
	startingBalance decimal.Decimal
}

func NewCurrencyService(txRunner db.TxRunner, currencies CurrencyStore, balances BalanceStore, transactions TransactionStore, gate Gate, notifier Notifier, policies Policies, startingBalance decimal.Decimal) *CurrencyService {
	return &CurrencyService{
		txRunner:        txRunner,
		currencies:      currencies,
		balances:        balances,
		transactions:    transactions,
		gate:            gate,
		notifier:        notifier,
		policies:        policies,
		startingBalance: startingBalance,
	}
}

type CurrencyRequest struct {
	Name          string                `json:"name"`
	Slug          string                `json:"slug"`
	Symbol        string                `json:"symbol"`
	DecimalPlaces int                   `json:"decimal_places"`
	ExchangeRate  decimal.Decimal       `json:"exchange_rate"`
	IsDefault     bool                  `json:"is_default"`
	Status        models.CurrencyStatus `json:"status"`
}

type CreditRequest struct {
	UserID        int64
	CurrencyID    int64
	Amount        decimal.Decimal
	Type          models.TransactionType
	ReferenceType string
	ReferenceID   string
	Description   string
}

// DebitRequest has the same shape as a credit.
type DebitRequest = CreditRequest

type TransferRequest struct {
	FromUserID  int64
	ToUserID    int64
	CurrencyID  int64
	Amount      decimal.Decimal
	Description string
}

type TransferResult struct {
	DebitTransactionID  int64 `json:"debit_transaction_id"`
	CreditTransactionID int64 `json:"credit_transaction_id"`
}

type BulkAwardResult struct {
	UserID        int64  `json:"user_id"`
	TransactionID int64  `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (s *CurrencyService) Create(ctx context.Context, req CurrencyRequest) (int64, error) {
	input, err := normalizeCurrency(req)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		taken, err := s.currencies.SlugExists(ctx, tx, input.Slug, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyExists
		}
		if input.IsDefault {
			if err := s.currencies.ClearDefault(ctx, tx, 0); err != nil {
				return err
			}
		}
		id, err = s.currencies.Create(ctx, tx, input)
		return err
	})
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, wrapStorage("create currency", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{Action: "currency_created", ObjectType: "currency", ObjectID: fmt.Sprint(id)})
	return id, nil
}

func (s *CurrencyService) Update(ctx context.Context, id int64, req CurrencyRequest) error {
	input, err := normalizeCurrency(req)
	if err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.currencies.GetForUpdate(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCurrencyNotFound
			}
			return err
		}
		taken, err := s.currencies.SlugExists(ctx, tx, input.Slug, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyExists
		}
		if input.IsDefault {
			if err := s.currencies.ClearDefault(ctx, tx, id); err != nil {
				return err
			}
		}
		rows, err := s.currencies.Update(ctx, tx, id, input)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrCurrencyNotFound
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return wrapStorage("update currency", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{Action: "currency_updated", ObjectType: "currency", ObjectID: fmt.Sprint(id)})
	return nil
}

func (s *CurrencyService) Delete(ctx context.Context, id int64) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.currencies.GetForUpdate(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCurrencyNotFound
			}
			return err
		}
		usage, err := s.currencies.Usage(ctx, tx, id)
		if err != nil {
			return err
		}
		if usage.InUse() {
			return ErrInUse
		}
		rows, err := s.currencies.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrCurrencyNotFound
		}
		return nil
	})
	if err != nil {
		return wrapStorage("delete currency", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{Action: "currency_deleted", ObjectType: "currency", ObjectID: fmt.Sprint(id), Severity: "warning"})
	return nil
}

func (s *CurrencyService) Get(ctx context.Context, id int64) (models.Currency, error) {
	currency, err := s.currencies.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Currency{}, ErrCurrencyNotFound
	}
	return currency, wrapStorage("get currency", err)
}

func (s *CurrencyService) List(ctx context.Context) ([]models.Currency, error) {
	currencies, err := s.currencies.List(ctx)
	return currencies, wrapStorage("list currencies", err)
}

// GetBalance returns zero when the user has never held the currency.
func (s *CurrencyService) GetBalance(ctx context.Context, userID, currencyID int64) (decimal.Decimal, error) {
	balance, err := s.balances.Get(ctx, userID, currencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, wrapStorage("get balance", err)
	}
	return balance.Balance, nil
}

func (s *CurrencyService) Balances(ctx context.Context, userID int64) ([]models.UserBalance, error) {
	balances, err := s.balances.ListByUser(ctx, userID)
	return balances, wrapStorage("list balances", err)
}

func (s *CurrencyService) ListTransactions(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.transactions.ListByUser(ctx, userID, currencyID, limit, offset)
	return rows, wrapStorage("list transactions", err)
}

func (s *CurrencyService) Credit(ctx context.Context, req CreditRequest) (int64, error) {
	return s.mutate(ctx, req, true)
}

func (s *CurrencyService) Debit(ctx context.Context, req DebitRequest) (int64, error) {
	return s.mutate(ctx, req, false)
}

func (s *CurrencyService) mutate(ctx context.Context, req CreditRequest, credit bool) (int64, error) {
	currency, amount, err := s.prepare(ctx, req.UserID, req.CurrencyID, req.Amount)
	if err != nil {
		return 0, err
	}
	req.Amount = amount
	if err := s.gate.CheckRateLimit(ctx, req.UserID, s.policies.Balance); err != nil {
		return 0, err
	}
	var txID int64
	var balance decimal.Decimal
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if credit {
			txID, balance, err = s.CreditWithin(ctx, tx, currency, req)
		} else {
			txID, balance, err = s.DebitWithin(ctx, tx, currency, req)
		}
		return err
	})
	op := "credit"
	if !credit {
		op = "debit"
	}
	if err != nil {
		return 0, wrapStorage(op, err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.UserID,
		Action:     "currency_" + op,
		ObjectType: "currency",
		ObjectID:   fmt.Sprint(currency.ID),
		Details:    map[string]any{"amount": amount.String(), "transaction_id": txID, "type": req.Type},
	})
	s.notifier.Notify(ctx, req.UserID, notify.EventBalanceUpdated, map[string]any{
		"currency_id": currency.ID,
		"balance":     money.Format(balance, currency.DecimalPlaces),
	})
	return txID, nil
}

// CreditWithin adds to a balance inside the caller's transaction and logs
// the transaction row. It does not rate limit.
func (s *CurrencyService) CreditWithin(ctx context.Context, tx store.Tx, currency models.Currency, req CreditRequest) (int64, decimal.Decimal, error) {
	txType := req.Type
	if !txType.Valid() {
		txType = models.TransactionEarned
	}
	balance, err := s.balances.Credit(ctx, tx, req.UserID, currency.ID, req.Amount)
	if err != nil {
		return 0, decimal.Zero, err
	}
	txID, err := s.transactions.Create(ctx, tx, transactionInput(req, currency.ID, req.Amount, txType, balance))
	if err != nil {
		return 0, decimal.Zero, err
	}
	return txID, balance, nil
}

// DebitWithin subtracts from a balance inside the caller's transaction.
// The balance check and the write are one statement.
func (s *CurrencyService) DebitWithin(ctx context.Context, tx store.Tx, currency models.Currency, req DebitRequest) (int64, decimal.Decimal, error) {
	txType := req.Type
	if !txType.Valid() {
		txType = models.TransactionSpent
	}
	balance, err := s.balances.Debit(ctx, tx, req.UserID, currency.ID, req.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := s.balances.Exists(ctx, tx, req.UserID, currency.ID)
		if existsErr != nil {
			return 0, decimal.Zero, existsErr
		}
		if !exists {
			return 0, decimal.Zero, ErrNoBalance
		}
		return 0, decimal.Zero, ErrInsufficientFunds
	}
	if err != nil {
		return 0, decimal.Zero, err
	}
	txID, err := s.transactions.Create(ctx, tx, transactionInput(req, currency.ID, req.Amount.Neg(), txType, balance))
	if err != nil {
		return 0, decimal.Zero, err
	}
	return txID, balance, nil
}

func (s *CurrencyService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.FromUserID == req.ToUserID {
		return TransferResult{}, ErrSameUser
	}
	currency, amount, err := s.prepare(ctx, req.FromUserID, req.CurrencyID, req.Amount)
	if err != nil {
		return TransferResult{}, err
	}
	req.Amount = amount
	if req.ToUserID <= 0 {
		return TransferResult{}, ErrValidation
	}
	exists, err := s.gate.UserExists(ctx, req.ToUserID)
	if err != nil {
		return TransferResult{}, wrapStorage("transfer", err)
	}
	if !exists {
		return TransferResult{}, ErrTargetUserNotFound
	}
	if err := s.gate.CheckRateLimit(ctx, req.FromUserID, s.policies.Balance); err != nil {
		return TransferResult{}, err
	}
	var result TransferResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.TransferWithin(ctx, tx, currency, req, models.TransactionSpent, models.TransactionEarned, "transfer", "")
		return err
	})
	if err != nil {
		wrapped := wrapStorage("transfer", err)
		return TransferResult{}, &TransferError{Reason: reasonOf(wrapped), Err: wrapped}
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.FromUserID,
		Action:     "currency_transfer",
		ObjectType: "currency",
		ObjectID:   fmt.Sprint(currency.ID),
		Details:    map[string]any{"to_user_id": req.ToUserID, "amount": amount.String()},
	})
	for _, userID := range []int64{req.FromUserID, req.ToUserID} {
		s.notifier.Notify(ctx, userID, notify.EventBalanceUpdated, map[string]any{"currency_id": currency.ID})
	}
	return result, nil
}

// TransferWithin runs the debit and credit legs inside the caller's
// transaction. Either leg failing leaves the caller to roll back.
func (s *CurrencyService) TransferWithin(ctx context.Context, tx store.Tx, currency models.Currency, req TransferRequest, debitType, creditType models.TransactionType, refType, refID string) (TransferResult, error) {
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("transfer of %s", money.Format(req.Amount, currency.DecimalPlaces))
	}
	debitID, _, err := s.DebitWithin(ctx, tx, currency, DebitRequest{
		UserID:        req.FromUserID,
		CurrencyID:    currency.ID,
		Amount:        req.Amount,
		Type:          debitType,
		ReferenceType: refType,
		ReferenceID:   refID,
		Description:   description,
	})
	if err != nil {
		return TransferResult{}, err
	}
	creditID, _, err := s.CreditWithin(ctx, tx, currency, CreditRequest{
		UserID:        req.ToUserID,
		CurrencyID:    currency.ID,
		Amount:        req.Amount,
		Type:          creditType,
		ReferenceType: refType,
		ReferenceID:   refID,
		Description:   description,
	})
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{DebitTransactionID: debitID, CreditTransactionID: creditID}, nil
}

// Convert returns ok=false when either currency is missing.
func (s *CurrencyService) Convert(ctx context.Context, amount decimal.Decimal, fromID, toID int64) (decimal.Decimal, bool, error) {
	if fromID == toID {
		return amount, true, nil
	}
	from, err := s.currencies.GetByID(ctx, fromID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, wrapStorage("convert", err)
	}
	to, err := s.currencies.GetByID(ctx, toID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, wrapStorage("convert", err)
	}
	return ConvertAmount(amount, from, to), true, nil
}

// ConvertAmount is amount / from.rate * to.rate rounded half up to the
// target precision.
func ConvertAmount(amount decimal.Decimal, from, to models.Currency) decimal.Decimal {
	fromRate := money.ClampRate(from.ExchangeRate)
	toRate := money.ClampRate(to.ExchangeRate)
	return to.Round(amount.Div(fromRate).Mul(toRate))
}

// InitializeForNewUser grants the starting balance of the default currency.
// It is a no-op when no default currency exists.
func (s *CurrencyService) InitializeForNewUser(ctx context.Context, userID int64) (int64, error) {
	var txID int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		txID, err = s.InitializeForNewUserWithin(ctx, tx, userID)
		return err
	})
	return txID, wrapStorage("initialize balance", err)
}

func (s *CurrencyService) InitializeForNewUserWithin(ctx context.Context, tx store.Tx, userID int64) (int64, error) {
	if !s.startingBalance.IsPositive() {
		return 0, nil
	}
	currency, err := s.currencies.GetDefault(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	amount := currency.Round(s.startingBalance)
	if !amount.IsPositive() {
		return 0, nil
	}
	txID, _, err := s.CreditWithin(ctx, tx, currency, CreditRequest{
		UserID:        userID,
		CurrencyID:    currency.ID,
		Amount:        amount,
		Type:          models.TransactionAwarded,
		ReferenceType: "registration",
		ReferenceID:   fmt.Sprint(userID),
		Description:   "starting balance",
	})
	return txID, err
}

// BulkAward credits each user in its own transaction and reports the
// outcome per user.
func (s *CurrencyService) BulkAward(ctx context.Context, currencyID int64, userIDs []int64, amount decimal.Decimal, description string) ([]BulkAwardResult, error) {
	if len(userIDs) == 0 {
		return nil, ErrValidation
	}
	currency, rounded, err := s.prepare(ctx, userIDs[0], currencyID, amount)
	if err != nil {
		return nil, err
	}
	results := make([]BulkAwardResult, 0, len(userIDs))
	for _, userID := range userIDs {
		result := BulkAwardResult{UserID: userID}
		if userID <= 0 {
			result.Error = ErrValidation.Error()
			results = append(results, result)
			continue
		}
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			result.TransactionID, _, err = s.CreditWithin(ctx, tx, currency, CreditRequest{
				UserID:        userID,
				CurrencyID:    currency.ID,
				Amount:        rounded,
				Type:          models.TransactionAwarded,
				ReferenceType: "bulk_award",
				Description:   description,
			})
			return err
		})
		if err != nil {
			result.Error = reasonOf(wrapStorage("bulk award", err))
		} else {
			s.notifier.Notify(ctx, userID, notify.EventBalanceUpdated, map[string]any{"currency_id": currency.ID})
		}
		results = append(results, result)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		Action:     "currency_bulk_award",
		ObjectType: "currency",
		ObjectID:   fmt.Sprint(currency.ID),
		Details:    map[string]any{"users": len(userIDs), "amount": rounded.String()},
	})
	return results, nil
}

// prepare loads an active currency and rounds amount to its precision.
func (s *CurrencyService) prepare(ctx context.Context, userID, currencyID int64, amount decimal.Decimal) (models.Currency, decimal.Decimal, error) {
	if userID <= 0 || currencyID <= 0 {
		return models.Currency{}, decimal.Zero, ErrValidation
	}
	if !amount.IsPositive() {
		return models.Currency{}, decimal.Zero, ErrInvalidAmount
	}
	currency, err := s.currencies.GetByID(ctx, currencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Currency{}, decimal.Zero, ErrCurrencyNotFound
	}
	if err != nil {
		return models.Currency{}, decimal.Zero, wrapStorage("load currency", err)
	}
	if currency.Status != models.CurrencyActive {
		return models.Currency{}, decimal.Zero, ErrCurrencyInactive
	}
	rounded := currency.Round(amount)
	if !rounded.IsPositive() {
		return models.Currency{}, decimal.Zero, ErrInvalidAmount
	}
	return currency, rounded, nil
}

func transactionInput(req CreditRequest, currencyID int64, signed decimal.Decimal, txType models.TransactionType, balance decimal.Decimal) store.TransactionInput {
	return store.TransactionInput{
		UserID:          req.UserID,
		CurrencyID:      currencyID,
		Amount:          signed,
		TransactionType: txType,
		ReferenceType:   optionalString(req.ReferenceType),
		ReferenceID:     optionalString(req.ReferenceID),
		Description:     req.Description,
		BalanceAfter:    balance,
	}
}

func normalizeCurrency(req CurrencyRequest) (store.CurrencyInput, error) {
	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)
	if name == "" || symbol == "" {
		return store.CurrencyInput{}, ErrValidation
	}
	slug := Slugify(req.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return store.CurrencyInput{}, ErrValidation
	}
	status := req.Status
	if status == "" {
		status = models.CurrencyActive
	}
	if status != models.CurrencyActive && status != models.CurrencyInactive {
		return store.CurrencyInput{}, ErrValidation
	}
	rate := req.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	return store.CurrencyInput{
		Name:          name,
		Slug:          slug,
		Symbol:        symbol,
		DecimalPlaces: money.ClampPlaces(req.DecimalPlaces),
		ExchangeRate:  money.ClampRate(rate),
		IsDefault:     req.IsDefault && status == models.CurrencyActive,
		Status:        status,
	}, nil
}

// Slugify lowercases value and joins runs of letters and digits with "-".
func Slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
