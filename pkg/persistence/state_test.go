package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/network"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

type nopConsumer struct{}

func (*nopConsumer) DeliverValue(*signal.Handle, signal.Slot, signal.Values) {}
func (*nopConsumer) DeliverEvent(*signal.Handle, signal.Event) {}

func TestSnapshotStore(t *testing.T) {
	t.Run("SaveAndLoadEmpty", func(t *testing.T) {
		dir := t.TempDir()
		store := NewSnapshotStore(filepath.Join(dir, "snapshot.json"))

		if err := store.Save(&Snapshot{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != SnapshotVersion {
			t.Errorf("Version = %d, want %d", got.Version, SnapshotVersion)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		dir := t.TempDir()
		store := NewSnapshotStore(filepath.Join(dir, "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "snapshot.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSnapshotStore(path).Load(); err == nil {
			t.Error("Load() of corrupt file succeeded")
		}
	})

	t.Run("CreatesParentDirectory", func(t *testing.T) {
		dir := t.TempDir()
		store := NewSnapshotStore(filepath.Join(dir, "a", "b", "snapshot.json"))
		if err := store.Save(&Snapshot{SavedAt: time.Now()}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := os.Stat(store.Path()); err != nil {
			t.Fatalf("snapshot not written: %v", err)
		}
		entries, _ := os.ReadDir(filepath.Dir(store.Path()))
		if len(entries) != 1 {
			t.Errorf("directory has %d entries, want only the snapshot", len(entries))
		}
	})

	t.Run("Clear", func(t *testing.T) {
		dir := t.TempDir()
		store := NewSnapshotStore(filepath.Join(dir, "snapshot.json"))
		if err := store.Save(&Snapshot{}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("second Clear() error = %v", err)
		}
		got, _ := store.Load()
		if got != nil {
			t.Error("snapshot still present after Clear()")
		}
	})
}

func TestCaptureRoundTrip(t *testing.T) {
	cfg := device.DefaultConfig()
	cfg.Name = "synth"
	d, err := device.New(network.NewLoopback(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	spec := signal.Spec{
		Name:         "voice",
		Direction:    signal.DirectionInput,
		Type:         signal.TypeFloat32,
		Length:       3,
		Ephemeral:    true,
		Steal:        signal.StealNewest,
		MaxInstances: 8,
	}
	if _, err := d.Bind(spec, &nopConsumer{}, signal.Base()); err != nil {
		t.Fatal(err)
	}

	store := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))
	if _, err := store.Capture(d); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	dump, ok := got.Device("synth")
	if !ok {
		t.Fatal("device synth missing from snapshot")
	}
	if dump.ID != d.ID() {
		t.Errorf("ID = %q, want %q", dump.ID, d.ID())
	}
	if dump.Counts.Inputs != 1 {
		t.Errorf("Inputs = %d, want 1", dump.Counts.Inputs)
	}
	if len(dump.Signals) != 1 {
		t.Fatalf("len(Signals) = %d, want 1", len(dump.Signals))
	}
	sig := dump.Signals[0]
	if sig.Name != "voice" || sig.Length != 3 || sig.Steal != "newest" || sig.MaxInstances != 8 {
		t.Errorf("signal = %+v", sig)
	}
	if len(sig.Bindings) != 1 || sig.Bindings[0].Slot != signal.Base().String() {
		t.Errorf("bindings = %+v", sig.Bindings)
	}

	if _, ok := got.Device("other"); ok {
		t.Error("unexpected device other")
	}
}
