package vault

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

// TestIndexInvariantsHoldUnderRandomOperations drives the vault with a
// random mix of operations and checks it against a simple model after each
// step.
func TestIndexInvariantsHoldUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"alice", "bob", "carol", "dave", "erin"}

	f := newFixture(t)
	var model []string
	active := ""
	uuids := map[string]string{}

	indexOf := func(name string) int {
		for i, n := range model {
			if n == name {
				return i
			}
		}
		return -1
	}

	for step := 0; step < 150; step++ {
		name := names[rng.Intn(len(names))]
		switch op := rng.Intn(3); op {
		case 0:
			id, err := f.vault.Add(name, Secret{Token: fmt.Sprint(step)})
			if err != nil {
				t.Fatalf("step %d Add(%q): %v", step, name, err)
			}
			if prev, ok := uuids[name]; ok && indexOf(name) >= 0 && prev != id {
				t.Fatalf("step %d: uuid of %q changed", step, name)
			}
			uuids[name] = id
			if indexOf(name) < 0 {
				model = append(model, name)
				if len(model) == 1 {
					active = name
				}
			}
		case 1:
			err := f.vault.SetActive(name)
			if indexOf(name) < 0 {
				if !errors.Is(err, ErrAccountNotFound) {
					t.Fatalf("step %d SetActive(%q): %v", step, name, err)
				}
				break
			}
			if err != nil {
				t.Fatalf("step %d SetActive(%q): %v", step, name, err)
			}
			active = name
		case 2:
			err := f.vault.Remove(name)
			i := indexOf(name)
			if i < 0 {
				if !errors.Is(err, ErrAccountNotFound) {
					t.Fatalf("step %d Remove(%q): %v", step, name, err)
				}
				break
			}
			if err != nil {
				t.Fatalf("step %d Remove(%q): %v", step, name, err)
			}
			model = append(model[:i], model[i+1:]...)
			if active == name {
				active = ""
				if len(model) > 0 {
					active = model[0]
				}
			}
		}

		idx, err := f.vault.Snapshot()
		if err != nil {
			t.Fatalf("step %d Snapshot: %v", step, err)
		}
		if err := idx.validate(); err != nil {
			t.Fatalf("step %d: invariant broken: %v", step, err)
		}
		if idx.ActiveUsername != active {
			t.Fatalf("step %d: active = %q, model %q", step, idx.ActiveUsername, active)
		}
		if len(idx.Entries) != len(model) {
			t.Fatalf("step %d: %d entries, model has %d", step, len(idx.Entries), len(model))
		}
		for i, e := range idx.Entries {
			if e.Username != model[i] {
				t.Fatalf("step %d: entry %d = %q, model %q", step, i, e.Username, model[i])
			}
			if e.UUID != uuids[e.Username] {
				t.Fatalf("step %d: uuid of %q drifted", step, e.Username)
			}
		}
	}

	// Every surviving account's credentials agree with its index entry.
	for _, name := range model {
		rec, err := f.vault.Credentials(name)
		if err != nil {
			t.Fatalf("Credentials(%q): %v", name, err)
		}
		if rec.UUID != uuids[name] {
			t.Errorf("%q: credential uuid %q, index %q", name, rec.UUID, uuids[name])
		}
	}
}
