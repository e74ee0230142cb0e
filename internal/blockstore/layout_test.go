package blockstore

import "testing"

func TestBitmapFindZeroBit(t *testing.T) {
	cases := []struct {
		bitmap uint64
		want   int
	}{
		{0, 0},
		{1, 1},
		{0b11, 2},
		{^uint64(0), 64},
		{^uint64(0) &^ (1 << 5), 5},
		{^uint64(0) &^ (1 << 63), 63},
	}

	for _, c := range cases {
		if got := BitmapFindZeroBit(c.bitmap); got != c.want {
			t.Errorf("BitmapFindZeroBit(%#x) = %d, want %d", c.bitmap, got, c.want)
		}
	}
}

func TestBitmapFindZeroBit32(t *testing.T) {
	cases := []struct {
		bitmap uint32
		want   int
	}{
		{0, 0},
		{0b1, 1},
		{0xFFFFFFFF, 32},
		{0xFFFFFFFF &^ (1 << 10), 10},
	}

	for _, c := range cases {
		if got := BitmapFindZeroBit32(c.bitmap); got != c.want {
			t.Errorf("BitmapFindZeroBit32(%#x) = %d, want %d", c.bitmap, got, c.want)
		}
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	buf := make([]byte, 32)

	putU8(buf, 0, 0x7A)
	if got := getU8(buf, 0); got != 0x7A {
		t.Errorf("u8 round-trip: got %#x", got)
	}

	putU32(buf, 4, 0xDEADBEEF)
	if got := getU32(buf, 4); got != 0xDEADBEEF {
		t.Errorf("u32 round-trip: got %#x", got)
	}

	putU64(buf, 8, 0x0123456789ABCDEF)
	if got := getU64(buf, 8); got != 0x0123456789ABCDEF {
		t.Errorf("u64 round-trip: got %#x", got)
	}
}
