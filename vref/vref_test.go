package vref

import "testing"

func TestRootIsFixed(t *testing.T) {
	if Root.Type() != Object || Root.Allocator() != Vat || Root.Kind() != Ordinary || Root.ID() != 0 {
		t.Fatalf("root vref has wrong coordinates: %+v", Root)
	}
	if got, want := Root.String(), "o+0"; got != want {
		t.Fatalf("root vref string = %q, want %q", got, want)
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	cases := []Vref{
		Root,
		New(Object, Kernel, Ordinary, 10),
		New(Promise, Vat, Ordinary, 6),
		New(Promise, Kernel, Ordinary, 3),
		New(Device, Vat, Ordinary, 2),
		New(Object, Vat, Virtual, 12),
	}
	for _, v := range cases {
		s := v.String()
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got != v {
			t.Fatalf("round trip %+v -> %q -> %+v", v, s, got)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "x", "o", "o+", "o*5", "p-v3", "o+1a"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) should have failed", s)
		}
	}
}

func TestCoordinatesStableAcrossLifetime(t *testing.T) {
	v := New(Object, Vat, Ordinary, 42)
	v2 := v
	if v != v2 {
		t.Fatal("copy changed coordinates")
	}
	// Vref has no mutator methods; coordinates can only change by
	// constructing a brand new value, which is the invariant under test.
}

func TestAllocatorMonotonicAndNeverReused(t *testing.T) {
	a := NewIDAllocator()
	seen := map[Vref]bool{}
	for i := 0; i < 100; i++ {
		v := a.NextObject()
		if seen[v] {
			t.Fatalf("id %v reused", v)
		}
		seen[v] = true
		if v.ID() == 0 {
			t.Fatal("allocator issued reserved root id 0")
		}
	}
}

func TestLessMatchesLexicographicString(t *testing.T) {
	a := New(Object, Kernel, Ordinary, 2)
	b := New(Object, Kernel, Ordinary, 10)
	// "o-10" < "o-2" lexicographically because '1' < '2', even though
	// 10 > 2 numerically -- GC batches must sort by the textual form, not
	// numeric id, so this is the behavior under test, not a bug.
	if !Less(b, a) {
		t.Fatalf("expected lexicographic sort: %q should sort before %q", b, a)
	}
}
