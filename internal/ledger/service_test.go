package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

type sourceKey struct {
	sourceID uuid.UUID
	module   string
	txType   string
}

type memStore struct {
	accounts       map[int64]GLAccount
	accountsByCode map[string]int64
	mappings       []GLMapping
	transactions   map[sourceKey]*GLTransaction
	byID           map[int64]*GLTransaction
	nextID         int64

	forceConflict bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:       make(map[int64]GLAccount),
		accountsByCode: make(map[string]int64),
		transactions:   make(map[sourceKey]*GLTransaction),
		byID:           make(map[int64]*GLTransaction),
	}
}

func (m *memStore) GetAccountByCode(_ context.Context, branchID int64, code string) (GLAccount, error) {
	id, ok := m.accountsByCode[fmt.Sprintf("%d/%s", branchID, code)]
	if !ok {
		return GLAccount{}, ErrAccountNotFound
	}
	return m.accounts[id], nil
}

func (m *memStore) CreateAccount(_ context.Context, account GLAccount) (GLAccount, error) {
	key := fmt.Sprintf("%d/%s", account.BranchID, account.Code)
	if _, ok := m.accountsByCode[key]; ok {
		return GLAccount{}, ErrAccountExists
	}
	m.nextID++
	account.ID = m.nextID
	account.IsActive = true
	m.accounts[account.ID] = account
	m.accountsByCode[key] = account.ID
	return account, nil
}

func (m *memStore) CreateMapping(_ context.Context, mapping GLMapping) (GLMapping, error) {
	for _, existing := range m.mappings {
		if existing.TransactionType == mapping.TransactionType &&
			existing.MappingType == mapping.MappingType &&
			existing.BranchID == mapping.BranchID &&
			sameFloatScope(existing.FloatAccountID, mapping.FloatAccountID) {
			return GLMapping{}, ErrMappingExists
		}
	}
	m.nextID++
	mapping.ID = m.nextID
	mapping.IsActive = true
	m.mappings = append(m.mappings, mapping)
	return mapping, nil
}

func sameFloatScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *memStore) ActiveMappings(_ context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error) {
	var out []GLMapping
	for _, mapping := range m.mappings {
		if mapping.TransactionType == txType && mapping.BranchID == branchID &&
			mapping.IsActive && sameFloatScope(mapping.FloatAccountID, floatAccountID) {
			out = append(out, mapping)
		}
	}
	return out, nil
}

func (m *memStore) AccountsByID(_ context.Context, ids []int64) (map[int64]GLAccount, error) {
	out := make(map[int64]GLAccount, len(ids))
	for _, id := range ids {
		if account, ok := m.accounts[id]; ok {
			out[id] = account
		}
	}
	return out, nil
}

func (m *memStore) GetAccount(_ context.Context, id int64) (GLAccount, error) {
	account, ok := m.accounts[id]
	if !ok {
		return GLAccount{}, ErrAccountNotFound
	}
	return account, nil
}

func (m *memStore) ListAccounts(_ context.Context, branchID int64, _ shared.Pagination) ([]GLAccount, error) {
	var out []GLAccount
	for _, account := range m.accounts {
		if account.BranchID == branchID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (m *memStore) GetTransactionBySource(_ context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	txn, ok := m.transactions[sourceKey{sourceID, module, txType}]
	if !ok {
		return GLTransaction{}, ErrTransactionNotFound
	}
	header := *txn
	header.Entries = nil
	return header, nil
}

func (m *memStore) GetTransactionWithEntries(_ context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	txn, ok := m.transactions[sourceKey{sourceID, module, txType}]
	if !ok {
		return GLTransaction{}, ErrTransactionNotFound
	}
	return *txn, nil
}

func (m *memStore) ListTransactions(_ context.Context, module string, since time.Time, _ shared.Pagination) ([]GLTransaction, error) {
	var out []GLTransaction
	for _, txn := range m.byID {
		if (module == "" || txn.SourceModule == module) && !txn.Date.Before(since) {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memLedgerTx)(m))
}

type memLedgerTx memStore

func (m *memLedgerTx) GetTransactionBySource(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	return (*memStore)(m).GetTransactionBySource(ctx, sourceID, module, txType)
}

func (m *memLedgerTx) InsertTransaction(_ context.Context, txn GLTransaction) (GLTransaction, error) {
	key := sourceKey{txn.SourceTransactionID, txn.SourceModule, txn.SourceTransactionType}
	if m.forceConflict {
		// A concurrent worker wins the race on the unique source key.
		m.forceConflict = false
		m.nextID++
		winner := txn
		winner.ID = m.nextID
		m.transactions[key] = &winner
		m.byID[winner.ID] = &winner
		return GLTransaction{}, ErrSourceConflict
	}
	if _, ok := m.transactions[key]; ok {
		return GLTransaction{}, ErrSourceConflict
	}
	m.nextID++
	txn.ID = m.nextID
	txn.CreatedAt = time.Now()
	stored := txn
	m.transactions[key] = &stored
	m.byID[txn.ID] = &stored
	return txn, nil
}

func (m *memLedgerTx) InsertEntries(_ context.Context, transactionID int64, entries []JournalEntry) error {
	txn, ok := m.byID[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	for _, entry := range entries {
		m.nextID++
		entry.ID = m.nextID
		entry.TransactionID = transactionID
		txn.Entries = append(txn.Entries, entry)
	}
	return nil
}

func (m *memLedgerTx) IncrementBalance(_ context.Context, accountID int64, delta float64) error {
	account, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance += delta
	m.accounts[accountID] = account
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, shared.AuditLog) error { return nil }

type countingMetrics struct {
	counts map[string]int
}

func (c *countingMetrics) ObservePosting(module, status string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[module+"/"+status]++
}

func newTestService(store *memStore) *Service {
	log := slog.Default()
	cache := NewMappingCache(nil, 0)
	provisioner := NewProvisioner(store, cache, log)
	resolver := NewResolver(store, cache, provisioner, log)
	return NewService(store, resolver, nopAudit{}, nil, log)
}

func momoRequest(sourceID string) PostingRequest {
	return PostingRequest{
		Module:          liquidity.ModuleMomo,
		TransactionType: "cash-in",
		SourceID:        sourceID,
		Amount:          100,
		Fee:             2,
		BranchID:        10,
		BranchCode:      "ACC01",
		Provider:        "MTN",
		CashTillDelta:   102,
		Description:     "momo cash in",
		UserID:          "7",
	}
}

func TestPostProvisionsAndBalances(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, result.Status)
	require.NotZero(t, result.TransactionID)

	txn := store.byID[result.TransactionID]
	require.NotNil(t, txn)
	assert.NoError(t, VerifyBalanced(txn.Entries))
	assert.NotEmpty(t, txn.Entries)

	mainAccount, err := store.GetAccountByCode(context.Background(), 10, "MOMO-ACC01-MTN-MAIN")
	require.NoError(t, err)
	assert.NotZero(t, mainAccount.ID, "accounts auto-provisioned on first posting")

	tillAccount, err := store.GetAccountByCode(context.Background(), 10, "TILL-ACC01-CASH-ASSET")
	require.NoError(t, err)
	assert.Equal(t, 102.0, tillAccount.Balance, "till cash grows by the gross amount")
}

func TestPostBalancesTrackSignedLineSums(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	request := momoRequest("TX-1")
	request.Amount = 1000
	request.Fee = 20
	request.CashTillDelta = 1020
	result, err := svc.Post(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Status)

	txn := store.byID[result.TransactionID]
	require.NotNil(t, txn)
	for id, account := range store.accounts {
		assert.InDelta(t, sumDelta(txn.Entries, id), account.Balance, 0.001, account.Code)
	}

	liability, err := store.GetAccountByCode(context.Background(), 10, "MOMO-ACC01-MTN-LIABILITY")
	require.NoError(t, err)
	assert.InDelta(t, sumDelta(txn.Entries, liability.ID), liability.Balance, 0.001,
		"liability balance follows debit minus credit, not its credit-side mirror")
}

func TestPostIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	first, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)
	require.Equal(t, StatusPosted, first.Status)

	second, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyPosted, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Len(t, store.byID, 1)
}

func TestPostConflictBackstop(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	store.forceConflict = true
	result, err := svc.Post(context.Background(), momoRequest("TX-9"))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyPosted, result.Status)
	assert.NotZero(t, result.TransactionID, "the winner's transaction is reported")
}

func TestReverseSwapsOriginalLines(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	posted, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)

	original := store.byID[posted.TransactionID]
	balancesBefore := make(map[int64]float64)
	for id, account := range store.accounts {
		balancesBefore[id] = account.Balance
	}

	reversed, err := svc.Reverse(context.Background(), ReverseRequest{
		Module:          liquidity.ModuleMomo,
		TransactionType: "cash-in",
		SourceID:        "TX-1",
		UserID:          "7",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, reversed.Status)

	mirror := store.byID[reversed.TransactionID]
	require.Len(t, mirror.Entries, len(original.Entries))
	for i, line := range mirror.Entries {
		assert.Equal(t, original.Entries[i].Debit, line.Credit)
		assert.Equal(t, original.Entries[i].Credit, line.Debit)
	}
	for id, account := range store.accounts {
		touched := false
		for _, entry := range original.Entries {
			if entry.AccountID == id {
				touched = true
			}
		}
		if touched {
			assert.InDelta(t, balancesBefore[id]-sumDelta(original.Entries, id), account.Balance, 0.001)
		}
	}
}

func sumDelta(entries []JournalEntry, accountID int64) float64 {
	var total float64
	for _, entry := range entries {
		if entry.AccountID != accountID {
			continue
		}
		total += entry.Debit - entry.Credit
	}
	return total
}

func TestReverseMissingOriginalSkips(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.Reverse(context.Background(), ReverseRequest{
		Module:          liquidity.ModuleMomo,
		TransactionType: "cash-in",
		SourceID:        "NOPE",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
}

func TestReverseIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)

	req := ReverseRequest{Module: liquidity.ModuleMomo, TransactionType: "cash-in", SourceID: "TX-1"}
	first, err := svc.Reverse(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Reverse(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyPosted, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
}

func TestAdjustPostsNetDelta(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)

	result, err := svc.Adjust(context.Background(), AdjustRequest{
		Module:          liquidity.ModuleMomo,
		TransactionType: "cash-in",
		SourceID:        "TX-1",
		Reference:       "2",
		OldAmount:       100,
		OldFee:          2,
		NewAmount:       120,
		NewFee:          2,
		BranchID:        10,
		BranchCode:      "ACC01",
		Provider:        "MTN",
		Description:     "amount corrected",
		UserID:          "7",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Status)

	txn := store.byID[result.TransactionID]
	require.Len(t, txn.Entries, 2)
	var moved float64
	for _, entry := range txn.Entries {
		moved += entry.Debit
	}
	assert.Equal(t, 20.0, moved, "only the 20 difference posts")
	assert.Equal(t, "adjustment_cash-in", txn.SourceTransactionType)
}

func TestAdjustNoChangeSkips(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.Adjust(context.Background(), AdjustRequest{
		Module:          liquidity.ModuleMomo,
		TransactionType: "cash-in",
		SourceID:        "TX-1",
		Reference:       "2",
		OldAmount:       100,
		NewAmount:       100,
		BranchID:        10,
		BranchCode:      "ACC01",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "no net change", result.Reason)
}

func TestSettlementNeedsPaymentAccount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	request := PostingRequest{
		Module:          liquidity.ModuleJumia,
		TransactionType: "settlement",
		SourceID:        "SET-1",
		Amount:          1000,
		BranchID:        10,
		BranchCode:      "ACC01",
		Description:     "jumia settlement",
	}
	result, err := svc.Post(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status, "no payment account code given")

	bank, err := store.CreateAccount(context.Background(), GLAccount{
		Code: "BANK-GCB-MAIN", Name: "GCB Current", Type: AccountTypeAsset, BranchID: 10,
	})
	require.NoError(t, err)

	request.SourceID = "SET-2"
	request.PaymentAccountCode = bank.Code
	result, err = svc.Post(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, result.Status)

	txn := store.byID[result.TransactionID]
	var creditsBank bool
	for _, entry := range txn.Entries {
		if entry.AccountID == bank.ID && entry.Credit == 1000 {
			creditsBank = true
		}
	}
	assert.True(t, creditsBank, "settlement credits the chosen payment account")
}

func TestProvisionerIdempotent(t *testing.T) {
	store := newMemStore()
	log := slog.Default()
	cache := NewMappingCache(nil, 0)
	provisioner := NewProvisioner(store, cache, log)

	ctx := context.Background()
	require.NoError(t, provisioner.EnsureMappings(ctx, liquidity.ModuleMomo, 10, "ACC01", "MTN", nil))
	accounts := len(store.accounts)
	mappings := len(store.mappings)

	require.NoError(t, provisioner.EnsureMappings(ctx, liquidity.ModuleMomo, 10, "ACC01", "MTN", nil))
	assert.Equal(t, accounts, len(store.accounts), "second run creates nothing")
	assert.Equal(t, mappings, len(store.mappings))
}

func TestProvisionerReplicatesReversalTypes(t *testing.T) {
	store := newMemStore()
	provisioner := NewProvisioner(store, NewMappingCache(nil, 0), slog.Default())

	ctx := context.Background()
	require.NoError(t, provisioner.EnsureMappings(ctx, liquidity.ModuleMomo, 10, "ACC01", "MTN", nil))

	for _, reversalType := range ReversalTypes(liquidity.ModuleMomo) {
		replicas, err := store.ActiveMappings(ctx, reversalType, 10, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, replicas, "missing replicas for %s", reversalType)
	}
}

func TestPostObservesMetrics(t *testing.T) {
	store := newMemStore()
	metrics := &countingMetrics{}
	log := slog.Default()
	cache := NewMappingCache(nil, 0)
	provisioner := NewProvisioner(store, cache, log)
	resolver := NewResolver(store, cache, provisioner, log)
	svc := NewService(store, resolver, nopAudit{}, metrics, log)

	_, err := svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), momoRequest("TX-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.counts["momo/posted"])
	assert.Equal(t, 1, metrics.counts["momo/already_posted"])
}
