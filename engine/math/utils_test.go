package math

import "testing"

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, alignment, want uint32
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{100, 256, 256},
		{257, 256, 512},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.size, tt.alignment); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 1, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Error("Clamp returned an unexpected value")
	}
	if Clamp(0.5, 0.0, 1.0) != 0.5 {
		t.Error("Clamp on floats failed")
	}
}

func TestMipLevels(t *testing.T) {
	tests := []struct {
		w, h, want uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{256, 256, 9},
		{512, 128, 10},
	}
	for _, tt := range tests {
		if got := MipLevels(tt.w, tt.h); got != tt.want {
			t.Errorf("MipLevels(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
	if !IsPowerOfTwo(uint32(64)) || IsPowerOfTwo(uint32(48)) || IsPowerOfTwo(uint32(0)) {
		t.Error("IsPowerOfTwo mismatch")
	}
}
