package buffer

import "testing"

func TestBytePoolGetReturnsRequestedLength(t *testing.T) {
	p := NewBytePool()

	buf := p.Get(20000)
	if len(buf) != 20000 {
		t.Fatalf("len = %d, want 20000", len(buf))
	}
}

func TestBytePoolGetExceedingLargestBucket(t *testing.T) {
	p := NewBytePool()

	buf := p.Get(100 * 1024 * 1024)
	if len(buf) != 100*1024*1024 {
		t.Fatalf("len = %d, want 100MiB", len(buf))
	}
}

func TestBytePoolPutNilIsNoop(t *testing.T) {
	p := NewBytePool()
	p.Put(nil) // must not panic
}

func TestBytePoolRoundTrip(t *testing.T) {
	p := NewBytePool()

	buf := p.Get(4096)
	buf[0] = 0xFF
	p.Put(buf)

	reused := p.Get(4096)
	if len(reused) != 4096 {
		t.Fatalf("len = %d, want 4096", len(reused))
	}
}

func TestBytePoolStats(t *testing.T) {
	p := NewBytePool()
	stats := p.GetStats()

	if stats.TotalPools == 0 {
		t.Fatal("expected at least one pool bucket")
	}
	if stats.MinBufferSize == 0 || stats.MaxBufferSize == 0 {
		t.Fatal("expected non-zero min/max bucket sizes")
	}
}

func TestGlobalBufferHelpers(t *testing.T) {
	buf := GetBuffer(1024)
	if len(buf) != 1024 {
		t.Fatalf("len = %d, want 1024", len(buf))
	}
	PutBuffer(buf)

	if GetPoolStats().TotalPools == 0 {
		t.Fatal("expected global pool to report buckets")
	}
}
