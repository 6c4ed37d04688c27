package plugin_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/missionhub/entitle/plugin"
)

type recordingPlugin struct {
	name     string
	consumed atomic.Int64
	denied   atomic.Int64
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnCreditsConsumed(ctx context.Context, userID, kind string, amount, remaining int64) error {
	p.consumed.Add(amount)
	return nil
}

func (p *recordingPlugin) OnCreditsDenied(ctx context.Context, userID, kind string, requested int64) error {
	p.denied.Add(1)
	return nil
}

func TestRegistryRegister(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&recordingPlugin{name: "rec"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	if r.Get("rec") == nil {
		t.Fatal("Get returned nil for registered plugin")
	}
	if r.Get("missing") != nil {
		t.Fatal("Get returned a plugin for unknown name")
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&recordingPlugin{name: "rec"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recordingPlugin{name: "rec"}); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestRegistryEmit(t *testing.T) {
	r := plugin.NewRegistry()
	p := &recordingPlugin{name: "rec"}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	r.EmitCreditsConsumed(ctx, "user_1", "application", 2, 1)
	r.EmitCreditsConsumed(ctx, "user_1", "application", 1, 0)
	r.EmitCreditsDenied(ctx, "user_1", "application", 1)

	if got := p.consumed.Load(); got != 3 {
		t.Errorf("consumed = %d, want 3", got)
	}
	if got := p.denied.Load(); got != 1 {
		t.Errorf("denied = %d, want 1", got)
	}

	// Hooks the plugin does not implement are a no-op.
	r.EmitPlanGranted(ctx, "user_1", "pro")
}
