package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

var serverID = model.ID{CompanyID: model.CompanyNordic, ModelID: 0x0000}

func provisionedNode(t *testing.T) *model.Node {
	t.Helper()
	node := model.NewNode(model.NodeConfig{ElementCount: 2})
	h, err := node.AddModel(0, serverID)
	if err != nil {
		t.Fatalf("AddModel() error = %v", err)
	}
	if err := node.SetUnicastAddress(0x0010); err != nil {
		t.Fatalf("SetUnicastAddress() error = %v", err)
	}
	if err := node.BindAppKey(h, 3); err != nil {
		t.Fatalf("BindAppKey() error = %v", err)
	}
	if err := node.SetPublication(h, model.Publication{Address: 0xC001, AppKeyIndex: 3, TTL: 5}); err != nil {
		t.Fatalf("SetPublication() error = %v", err)
	}
	if err := node.AllocSubscriptionList(h, 4); err != nil {
		t.Fatalf("AllocSubscriptionList() error = %v", err)
	}
	if err := node.AddSubscription(h, 0xC002); err != nil {
		t.Fatalf("AddSubscription() error = %v", err)
	}
	return node
}

func TestNodeStateStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewNodeStateStore(filepath.Join(t.TempDir(), "nonexistent.cbor"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewNodeStateStore(filepath.Join(t.TempDir(), "sub", "state.cbor"))
		id := uuid.New()

		if err := store.Save(&NodeState{UUID: id, Beacon: true}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != StateVersion {
			t.Errorf("Version = %d, want %d", got.Version, StateVersion)
		}
		if got.UUID != id {
			t.Errorf("UUID = %s, want %s", got.UUID, id)
		}
		if !got.Beacon {
			t.Error("Beacon = false, want true")
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		dir := t.TempDir()
		store := NewNodeStateStore(filepath.Join(dir, "state.cbor"))

		if err := store.Save(&NodeState{Beacon: true}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Save(&NodeState{Beacon: false}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Beacon {
			t.Error("Beacon = true after overwrite")
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir() error = %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("dir holds %d files, want 1", len(entries))
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewNodeStateStore(filepath.Join(t.TempDir(), "state.cbor"))

		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() on missing file error = %v", err)
		}
		if err := store.Save(&NodeState{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
			t.Errorf("state file still exists: %v", err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.cbor")
		if err := os.WriteFile(path, []byte{0xFF, 0x00}, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewNodeStateStore(path).Load(); err == nil {
			t.Error("Load() of corrupt file succeeded")
		}
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.cbor")
		data, err := cbor.Marshal(&NodeState{Version: StateVersion + 1})
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		_, err = NewNodeStateStore(path).Load()
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Load() error = %v, want ErrUnsupportedVersion", err)
		}
	})
}

func TestNodeConfigRoundTrip(t *testing.T) {
	src := provisionedNode(t)
	store := NewNodeStateStore(filepath.Join(t.TempDir(), "state.cbor"))

	state := &NodeState{UUID: src.UUID()}
	state.FromConfig(src.Snapshot())
	if err := store.Save(state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dst := model.NewNode(model.NodeConfig{ElementCount: 2, UUID: loaded.UUID})
	h, err := dst.AddModel(0, serverID)
	if err != nil {
		t.Fatalf("AddModel() error = %v", err)
	}
	if err := dst.Restore(loaded.Config()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if dst.UUID() != src.UUID() {
		t.Errorf("UUID = %s, want %s", dst.UUID(), src.UUID())
	}
	if dst.UnicastAddress() != 0x0010 {
		t.Errorf("UnicastAddress = %s, want 0x0010", dst.UnicastAddress())
	}
	if !dst.IsBound(h, 3) {
		t.Error("app key 3 not bound after restore")
	}
	if !dst.IsSubscribed(h, 0xC002) {
		t.Error("subscription 0xC002 lost")
	}
	pub, err := dst.Publication(h)
	if err != nil {
		t.Fatalf("Publication() error = %v", err)
	}
	want := model.Publication{Address: 0xC001, AppKeyIndex: 3, TTL: 5}
	if pub != want {
		t.Errorf("Publication = %+v, want %+v", pub, want)
	}
}

func TestUnprovisionedState(t *testing.T) {
	node := model.NewNode(model.NodeConfig{})
	if _, err := node.AddModel(0, serverID); err != nil {
		t.Fatal(err)
	}

	var state NodeState
	state.FromConfig(node.Snapshot())
	if state.UnicastAddress != 0 {
		t.Errorf("UnicastAddress = %#x, want 0", state.UnicastAddress)
	}

	restored := model.NewNode(model.NodeConfig{})
	if _, err := restored.AddModel(0, serverID); err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(state.Config()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.IsProvisioned() {
		t.Error("restored node is provisioned")
	}
}
