package bufpool

import "testing"

func TestGetSizeBuckets(t *testing.T) {
	tests := []struct {
		name      string
		request   int
		expectCap int
	}{
		{"4KB bucket - exact", 4 * 1024, 4 * 1024},
		{"4KB bucket - smaller", 1 * 1024, 4 * 1024},
		{"16KB bucket - exact", 16 * 1024, 16 * 1024},
		{"64KB bucket - smaller", 50 * 1024, 64 * 1024},
		{"256KB bucket - exact", 256 * 1024, 256 * 1024},
		{"oversize falls through unpooled", 512 * 1024, 512 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.request)
			if len(buf) != tt.request {
				t.Errorf("Get(%d) returned len=%d, want %d", tt.request, len(buf), tt.request)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("Get(%d) returned cap=%d, want %d", tt.request, cap(buf), tt.expectCap)
			}
			Put(buf)
		})
	}
}

func TestPutNonStandardCapDoesNotPanic(t *testing.T) {
	buf := make([]byte, 100*1024)
	Put(buf)
}

func BenchmarkGet16KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get(16 * 1024)
		Put(buf)
	}
}
