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

func strPtr(s string) *string { return &s }

func TestPlanLifecycle(t *testing.T) {
	t.Parallel()
	svc := NewPlanService(memstore.New(), zap.NewNop())
	ctx := context.Background()

	game := model.PlanTypeGame
	first, err := svc.CreatePlan(ctx, PlanParams{
		Name:      strPtr("  Minecraft S  "),
		Type:      &game,
		Price:     decPtr("199.999"),
		RAMMB:     intPtr(2048),
		SortOrder: intPtr(2),
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if first.Name != "Minecraft S" || !first.IsActive {
		t.Fatalf("unexpected plan: %+v", first)
	}
	if !first.Price.Equal(dec("200")) {
		t.Fatalf("price = %s, want 200", first.Price)
	}

	vps := model.PlanTypeVPS
	second, err := svc.CreatePlan(ctx, PlanParams{Name: strPtr("VPS 1"), Type: &vps, Price: decPtr("500"), SortOrder: intPtr(1)})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	active, err := svc.GetActivePlans(ctx)
	if err != nil {
		t.Fatalf("GetActivePlans: %v", err)
	}
	if len(active) != 2 || active[0].ID != second.ID {
		t.Fatalf("active plans not ordered by sort_order: %+v", active)
	}

	updated, err := svc.UpdatePlan(ctx, first.ID, PlanParams{Price: decPtr("250")})
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if !updated.Price.Equal(dec("250")) || updated.Name != "Minecraft S" {
		t.Fatalf("update changed unrelated fields: %+v", updated)
	}

	if err := svc.DeletePlan(ctx, first.ID); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	active, _ = svc.GetActivePlans(ctx)
	if len(active) != 1 {
		t.Fatalf("active plans after delete = %d, want 1", len(active))
	}
	all, _ := svc.GetAllPlans(ctx)
	if len(all) != 2 {
		t.Fatalf("all plans after delete = %d, want 2", len(all))
	}
}

func TestPlanValidation(t *testing.T) {
	t.Parallel()
	svc := NewPlanService(memstore.New(), zap.NewNop())
	ctx := context.Background()

	game := model.PlanTypeGame
	bogus := model.PlanType("DEDICATED")
	tests := []struct {
		name   string
		params PlanParams
	}{
		{"missing name", PlanParams{Type: &game, Price: decPtr("1")}},
		{"blank name", PlanParams{Name: strPtr("   "), Type: &game}},
		{"unknown type", PlanParams{Name: strPtr("x"), Type: &bogus}},
		{"negative price", PlanParams{Name: strPtr("x"), Type: &game, Price: decPtr("-1")}},
	}
	for _, tt := range tests {
		if _, err := svc.CreatePlan(ctx, tt.params); KindOf(err) != KindValidation {
			t.Errorf("%s: err = %v, want validation error", tt.name, err)
		}
	}

	if _, err := svc.UpdatePlan(ctx, uuid.New(), PlanParams{}); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("UpdatePlan unknown: err = %v, want ErrPlanNotFound", err)
	}
}
