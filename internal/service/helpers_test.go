package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int { return &i }

// seedUser creates a user with the given balance, backed by one BONUS
// entry so the ledger sum matches.
func seedUser(t *testing.T, store *memstore.Store, balance string) model.User {
	t.Helper()
	return seed(t, store, model.User{}, balance)
}

// seedChatUser is seedUser with a linked Telegram chat.
func seedChatUser(t *testing.T, store *memstore.Store, balance string, chatID int64) model.User {
	t.Helper()
	return seed(t, store, model.User{TelegramID: &chatID}, balance)
}

func seed(t *testing.T, store *memstore.Store, u model.User, balance string) model.User {
	t.Helper()
	u = store.AddUser(u)
	if balance == "" || dec(balance).IsZero() {
		return u
	}
	svc := NewBalanceService(store, zap.NewNop())
	if _, err := svc.Append(context.Background(), Entry{
		UserID:      u.ID,
		Type:        model.TransactionTypeBonus,
		Amount:      dec(balance),
		Description: "seed",
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	u.Balance = dec(balance)
	return u
}

func balanceOf(t *testing.T, store *memstore.Store, userID int64) decimal.Decimal {
	t.Helper()
	b, err := store.GetUserBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

func assertBalance(t *testing.T, store *memstore.Store, userID int64, want string) {
	t.Helper()
	if got := balanceOf(t, store, userID); !got.Equal(dec(want)) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

// assertLedgerConsistent checks that the stored balance equals the sum of
// completed entries and that every entry chains before + amount = after.
func assertLedgerConsistent(t *testing.T, store *memstore.Store, userID int64) {
	t.Helper()
	sum := decimal.Zero
	for _, tx := range store.Transactions(userID) {
		if tx.Status != model.TransactionStatusCompleted {
			continue
		}
		if !tx.BalanceBefore.Add(tx.Amount).Equal(tx.BalanceAfter) {
			t.Fatalf("entry %s: %s + %s != %s", tx.ID, tx.BalanceBefore, tx.Amount, tx.BalanceAfter)
		}
		sum = sum.Add(tx.Amount)
	}
	if got := balanceOf(t, store, userID); !got.Equal(sum) {
		t.Fatalf("balance %s != ledger sum %s", got, sum)
	}
}

func countType(store *memstore.Store, userID int64, txType model.TransactionType) int {
	n := 0
	for _, tx := range store.Transactions(userID) {
		if tx.Type == txType {
			n++
		}
	}
	return n
}

type sentMessage struct {
	chatID int64
	kind   string
	amount decimal.Decimal
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) record(chatID int64, kind string, amount decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{chatID: chatID, kind: kind, amount: amount})
	return nil
}

func (n *fakeNotifier) SendBalanceTopUp(chatID int64, amount, _ decimal.Decimal) error {
	return n.record(chatID, "topup", amount)
}

func (n *fakeNotifier) SendReferralBonus(chatID int64, bonus decimal.Decimal) error {
	return n.record(chatID, "referral", bonus)
}

func (n *fakeNotifier) SendWithdrawalUpdate(chatID int64, amount decimal.Decimal, _ model.WithdrawalStatus) error {
	return n.record(chatID, "withdrawal", amount)
}

func (n *fakeNotifier) SendSpendingAlert(chatID int64, alert SpendingAlert) error {
	return n.record(chatID, "spending_"+alert.Period, alert.Spent)
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}
