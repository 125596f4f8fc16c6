package inode

import "testing"

func TestNewSeedsRoot(t *testing.T) {
	m := New("root-node")

	nodeID, ok := m.GetNodeID(RootIno)
	if !ok || nodeID != "root-node" {
		t.Fatalf("GetNodeID(RootIno) = %q, %v", nodeID, ok)
	}
}

func TestGetOrCreateStableUntilForgotten(t *testing.T) {
	m := New("root")

	ino1 := m.GetOrCreate("n1")
	ino2 := m.GetOrCreate("n1")
	if ino1 != ino2 {
		t.Fatalf("GetOrCreate not stable: %d != %d", ino1, ino2)
	}
	if ino1 == RootIno {
		t.Fatal("expected a non-root inode for n1")
	}
}

func TestGetOrCreateAllocatesDistinctInodes(t *testing.T) {
	m := New("root")

	a := m.GetOrCreate("a")
	b := m.GetOrCreate("b")
	if a == b {
		t.Fatal("expected distinct inodes for distinct node IDs")
	}
}

func TestForgetRemovesAtZero(t *testing.T) {
	m := New("root")
	ino := m.GetOrCreate("n1") // refcount 1
	m.GetOrCreate("n1")        // refcount 2

	m.Forget(ino, 1)
	if m.Forgotten(ino) {
		t.Fatal("expected entry to survive partial forget")
	}

	m.Forget(ino, 1)
	if !m.Forgotten(ino) {
		t.Fatal("expected entry to be removed after refcount reaches zero")
	}
}

func TestForgetOvershootClampsToZero(t *testing.T) {
	m := New("root")
	ino := m.GetOrCreate("n1")

	m.Forget(ino, 1000)
	if !m.Forgotten(ino) {
		t.Fatal("expected entry removed when nlookup exceeds refcount")
	}
}

func TestForgetRootIsNoop(t *testing.T) {
	m := New("root")
	m.Forget(RootIno, 1000)

	nodeID, ok := m.GetNodeID(RootIno)
	if !ok || nodeID != "root" {
		t.Fatal("expected root entry to survive forget")
	}
}

func TestGetIno(t *testing.T) {
	m := New("root")
	m.GetOrCreate("n1")

	ino, ok := m.GetIno("n1")
	if !ok {
		t.Fatal("expected GetIno to find n1")
	}
	if _, ok := m.GetIno("missing"); ok {
		t.Fatal("expected GetIno to miss on unregistered node")
	}
	_ = ino
}

func TestRemoveDropsRegardlessOfRefcount(t *testing.T) {
	m := New("root")
	m.GetOrCreate("n1")
	m.GetOrCreate("n1")

	m.Remove("n1")
	if _, ok := m.GetIno("n1"); ok {
		t.Fatal("expected Remove to drop the mapping immediately")
	}
}

func TestLen(t *testing.T) {
	m := New("root")
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (root only)", m.Len())
	}
	m.GetOrCreate("n1")
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}
