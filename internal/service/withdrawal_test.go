package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func TestWithdrawalLifecycle(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWithdrawalService(store, zap.NewNop())
	notifier := &fakeNotifier{}
	svc.SetNotifier(notifier)
	user := seedChatUser(t, store, "500", 9)
	admin := store.AddUser(model.User{})
	ctx := context.Background()

	w, err := svc.Create(ctx, user.ID, WithdrawalInput{Amount: dec("300"), Method: "card", Details: "4111"})
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != model.WithdrawalStatusPending {
		t.Fatalf("status = %s", w.Status)
	}
	assertBalance(t, store, user.ID, "500")

	done, err := svc.Complete(ctx, admin.ID, w.ID, "paid out")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != model.WithdrawalStatusCompleted || done.TransactionID == nil {
		t.Fatalf("completed = %+v", done)
	}
	assertBalance(t, store, user.ID, "200")
	assertLedgerConsistent(t, store, user.ID)

	txs := store.Transactions(user.ID)
	last := txs[len(txs)-1]
	if last.Type != model.TransactionTypeWithdrawal || !last.Amount.Equal(dec("-300")) || last.ID != *done.TransactionID {
		t.Fatalf("ledger entry = %+v", last)
	}

	if _, err := svc.Complete(ctx, admin.ID, w.ID, ""); !errors.Is(err, ErrWithdrawalDone) {
		t.Fatalf("double completion: err = %v", err)
	}
	if _, err := svc.Reject(ctx, admin.ID, w.ID, ""); !errors.Is(err, ErrWithdrawalConflict) {
		t.Fatalf("reject after completion: err = %v", err)
	}
	assertBalance(t, store, user.ID, "200")

	if msgs := notifier.messages(); len(msgs) != 1 || msgs[0].kind != "withdrawal" {
		t.Fatalf("notifications = %+v", msgs)
	}
}

func TestWithdrawalProcessThenReject(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWithdrawalService(store, zap.NewNop())
	user := seedUser(t, store, "100")
	ctx := context.Background()

	w, err := svc.Create(ctx, user.ID, WithdrawalInput{Amount: dec("100"), Method: "usdt"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(ctx, 1, w.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(ctx, 1, w.ID); !errors.Is(err, ErrWithdrawalConflict) {
		t.Fatalf("process twice: err = %v", err)
	}

	rejected, err := svc.Reject(ctx, 1, w.ID, "wrong address")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != model.WithdrawalStatusRejected || rejected.AdminNote == nil || *rejected.AdminNote != "wrong address" {
		t.Fatalf("rejected = %+v", rejected)
	}
	if _, err := svc.Complete(ctx, 1, w.ID, ""); !errors.Is(err, ErrWithdrawalConflict) {
		t.Fatalf("complete after reject: err = %v", err)
	}
	assertBalance(t, store, user.ID, "100")
}

func TestWithdrawalBalanceChecks(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWithdrawalService(store, zap.NewNop())
	balance := NewBalanceService(store, zap.NewNop())
	user := seedUser(t, store, "100")
	ctx := context.Background()

	if _, err := svc.Create(ctx, user.ID, WithdrawalInput{Amount: dec("150"), Method: "card"}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("create over balance: err = %v", err)
	}
	if _, err := svc.Create(ctx, user.ID, WithdrawalInput{Amount: dec("10")}); KindOf(err) != KindValidation {
		t.Fatalf("missing method: err = %v", err)
	}

	w, err := svc.Create(ctx, user.ID, WithdrawalInput{Amount: dec("80"), Method: "card"})
	if err != nil {
		t.Fatal(err)
	}
	// The balance is spent elsewhere before the admin completes the request.
	if _, err := balance.Append(ctx, Entry{UserID: user.ID, Type: model.TransactionTypePurchase, Amount: dec("-50")}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, 1, w.ID, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("complete over balance: err = %v", err)
	}
	assertBalance(t, store, user.ID, "50")

	if _, err := svc.Complete(ctx, 1, uuid.New(), ""); !errors.Is(err, ErrWithdrawalNotFound) {
		t.Fatalf("unknown id: err = %v", err)
	}
}

func TestListWithdrawals(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWithdrawalService(store, zap.NewNop())
	a := seedUser(t, store, "100")
	b := seedUser(t, store, "100")
	ctx := context.Background()

	for _, u := range []model.User{a, a, b} {
		if _, err := svc.Create(ctx, u.ID, WithdrawalInput{Amount: dec("1"), Method: "card"}); err != nil {
			t.Fatal(err)
		}
	}

	mine, err := svc.List(ctx, a.ID, 0, 0)
	if err != nil || len(mine) != 2 {
		t.Fatalf("mine = %d, err = %v", len(mine), err)
	}
	pending := model.WithdrawalStatusPending
	all, err := svc.ListAll(ctx, &pending, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("all = %d, err = %v", len(all), err)
	}
}
