package gate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoRunsOnApproval(t *testing.T) {
	runs := 0
	err := Do(context.Background(), Always, "Delete this item?", func(context.Context) error {
		runs++
		return nil
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if runs != 1 {
		t.Fatalf("action ran %d times, want 1", runs)
	}
}

func TestDoSkipsOnDecline(t *testing.T) {
	decline := ConfirmerFunc(func(context.Context, string) (bool, error) { return false, nil })

	runs := 0
	err := Do(context.Background(), decline, "Delete this item?", func(context.Context) error {
		runs++
		return nil
	})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
	if runs != 0 {
		t.Fatalf("action ran %d times after decline, want 0", runs)
	}
}

func TestDoPropagatesConfirmerError(t *testing.T) {
	boom := errors.New("prompt unavailable")
	failing := ConfirmerFunc(func(context.Context, string) (bool, error) { return false, boom })

	runs := 0
	err := Do(context.Background(), failing, "Delete?", func(context.Context) error {
		runs++
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want confirmer error", err)
	}
	if runs != 0 {
		t.Fatal("action ran despite confirmer error")
	}
}

func TestTokensSingleUse(t *testing.T) {
	tokens := NewTokens(time.Minute)

	token := tokens.Issue("Delete blog post?", "blog/abc")
	if token == "" {
		t.Fatal("Issue returned empty token")
	}
	if !tokens.Redeem(token, "blog/abc") {
		t.Fatal("first Redeem failed")
	}
	if tokens.Redeem(token, "blog/abc") {
		t.Fatal("token redeemed twice")
	}
	if tokens.Redeem("no-such-token", "blog/abc") {
		t.Fatal("unknown token redeemed")
	}
}

func TestTokensBoundToTarget(t *testing.T) {
	tokens := NewTokens(time.Minute)

	token := tokens.Issue("Delete blog post?", "blog/abc")
	if tokens.Redeem(token, "faqs/def") {
		t.Fatal("token redeemed against a different target")
	}
	// The mismatch consumed it; the original target cannot use it either.
	if tokens.Redeem(token, "blog/abc") {
		t.Fatal("token survived a mismatched redemption")
	}
}

func TestTokensExpire(t *testing.T) {
	tokens := NewTokens(time.Minute)
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return current }

	token := tokens.Issue("Delete event?", "events/xyz")
	current = current.Add(2 * time.Minute)
	if tokens.Redeem(token, "events/xyz") {
		t.Fatal("expired token redeemed")
	}
}
