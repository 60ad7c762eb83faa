// Package purchase 自动购买执行器测试
package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

type fakeBuyer struct {
	calls []string
	ok    bool
	err   error
}

func (f *fakeBuyer) Buy(_ context.Context, listingID string, _ model.Price) (bool, error) {
	f.calls = append(f.calls, listingID)
	return f.ok, f.err
}

func newTestExecutor(cfg config.AutobuyConfig, buyer Buyer, clock *time.Time) *Executor {
	e := NewExecutor(cfg, buyer, zap.NewNop())
	e.now = func() time.Time { return *clock }
	return e
}

func event(id string) *model.Classification {
	return &model.Classification{Kind: model.KindProfitable, ListingID: id, ListingPrice: 355, ProfitPct: 47.04}
}

func TestExecutor_Cooldown(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buyer := &fakeBuyer{ok: true}
	exec := newTestExecutor(config.AutobuyConfig{Enabled: true, CooldownMs: 10000}, buyer, &clock)

	r, err := exec.TryBuy(context.Background(), event("a"))
	if err != nil || !r.Performed || !r.Purchased {
		t.Fatalf("首次购买应执行: %+v err=%v", r, err)
	}

	clock = clock.Add(5 * time.Second)
	r, err = exec.TryBuy(context.Background(), event("b"))
	if err != nil || r.Performed {
		t.Fatalf("冷却期内不应执行: %+v err=%v", r, err)
	}

	clock = clock.Add(5 * time.Second)
	r, err = exec.TryBuy(context.Background(), event("c"))
	if err != nil || !r.Performed {
		t.Fatalf("冷却结束后应执行: %+v err=%v", r, err)
	}

	if len(buyer.calls) != 2 || buyer.calls[0] != "a" || buyer.calls[1] != "c" {
		t.Fatalf("下单调用不正确: %v", buyer.calls)
	}
}

func TestExecutor_FailureStartsCooldown(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buyer := &fakeBuyer{err: errors.New("timeout")}
	exec := newTestExecutor(config.AutobuyConfig{Enabled: true, CooldownMs: 10000}, buyer, &clock)

	r, err := exec.TryBuy(context.Background(), event("a"))
	if err == nil || !r.Performed || r.Purchased {
		t.Fatalf("失败的尝试应返回错误: %+v err=%v", r, err)
	}

	clock = clock.Add(time.Second)
	if r, _ := exec.TryBuy(context.Background(), event("b")); r.Performed {
		t.Fatalf("失败的尝试同样占用冷却时间")
	}
}

func TestExecutor_DryRun(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buyer := &fakeBuyer{ok: true}
	exec := newTestExecutor(config.AutobuyConfig{Enabled: true, DryRun: true, CooldownMs: 10000}, buyer, &clock)

	r, err := exec.TryBuy(context.Background(), event("a"))
	if err != nil || !r.Performed || !r.DryRun || r.Purchased {
		t.Fatalf("模拟购买结果不正确: %+v err=%v", r, err)
	}
	if len(buyer.calls) != 0 {
		t.Fatalf("模拟购买不应调用下单接口")
	}

	nilBuyer := newTestExecutor(config.AutobuyConfig{Enabled: true, CooldownMs: 10000}, nil, &clock)
	if r, _ := nilBuyer.TryBuy(context.Background(), event("a")); !r.DryRun {
		t.Fatalf("未配置下单接口时应退化为模拟")
	}
}

func TestFollowUpText(t *testing.T) {
	got := FollowUpText(event("679718648830624407"), Result{Performed: true, Purchased: true})
	want := "Tried to buy 679718648830624407 for $3.55: true"
	if got != want {
		t.Fatalf("FollowUpText = %q, 期望 %q", got, want)
	}
}
