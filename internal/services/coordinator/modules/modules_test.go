package modules_test

import (
	"errors"
	"testing"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/process"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/saga"
	"github.com/louisbranch/evented/internal/services/coordinator/modules"
	"github.com/louisbranch/evented/internal/services/coordinator/modules/builtin"
)

type recordingReactors struct {
	sagas     map[string][]string
	processes map[string][]string
}

func (r *recordingReactors) RegisterSaga(s saga.Saga, sources ...string) error {
	r.sagas[s.Name()] = sources
	return nil
}

func (r *recordingReactors) RegisterProcess(m process.Manager, sources ...string) error {
	r.processes[m.Name()] = sources
	return nil
}

func TestBuiltinRegistry(t *testing.T) {
	registry, err := builtin.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	router, err := registry.Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	want := []string{"hand", "inventory", "payment", "player", "shipping", "warehouse"}
	got := router.Names()
	if len(got) != len(want) {
		t.Fatalf("domains = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("domains = %v, want %v", got, want)
		}
	}

	reactors := &recordingReactors{sagas: map[string][]string{}, processes: map[string][]string{}}
	if err := registry.RegisterReactors(reactors); err != nil {
		t.Fatalf("reactors: %v", err)
	}
	if src := reactors.sagas["poker.settlement"]; len(src) != 1 || src[0] != "hand" {
		t.Fatalf("settlement sources = %v", src)
	}
	if src := reactors.processes["fulfillment"]; len(src) != 3 {
		t.Fatalf("fulfillment sources = %v", src)
	}
}

type stubModule struct{ id string }

func (m stubModule) ID() string { return m.id }
func (stubModule) Domains() []aggregate.Domain { return nil }
func (stubModule) RegisterReactors(modules.Reactors) error { return nil }

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := modules.NewRegistry(stubModule{"a"}, stubModule{"a"}); !errors.Is(err, modules.ErrModuleAlreadyRegistered) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := modules.NewRegistry(stubModule{" "}); !errors.Is(err, modules.ErrModuleIDRequired) {
		t.Fatalf("expected id error, got %v", err)
	}
}
