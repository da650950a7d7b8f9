package nodeid

import "testing"

func TestHashAndString(t *testing.T) {
	id := Hash([]byte("hello\n"))
	want := "f572d396fae9206628714fb2ce00f72e94f2258"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFromHexRoundTrip(t *testing.T) {
	id := Hash([]byte("round trip"))
	decoded, err := FromHex(id.String())
	if err != nil {
		t.Fatalf("FromHex failed: %v", err)
	}
	if decoded != id {
		t.Errorf("FromHex(String()) = %v, want %v", decoded, id)
	}
}

func TestFromHexInvalid(t *testing.T) {
	if _, err := FromHex("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := FromHex("aabb"); err == nil {
		t.Error("expected error for short hex")
	}
}

func TestIsZero(t *testing.T) {
	var id ID
	if !id.IsZero() {
		t.Error("zero value should report IsZero")
	}
	id = Hash([]byte("x"))
	if id.IsZero() {
		t.Error("hashed value should not report IsZero")
	}
}

func TestParentsIsRootAndIdentical(t *testing.T) {
	var p Parents
	if !p.IsRoot() {
		t.Error("empty Parents should be root")
	}
	a := Hash([]byte("a"))
	p = Parents{P1: Ptr(a)}
	if p.IsRoot() {
		t.Error("single-parent should not be root")
	}
	if p.Identical() {
		t.Error("single-parent should not be Identical")
	}
	p = Parents{P1: Ptr(a), P2: Ptr(a)}
	if !p.Identical() {
		t.Error("p1 == p2 should report Identical")
	}
}

func TestCompare(t *testing.T) {
	a, err := FromHex("0000000000000000000000000000000000000a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromHex("000000000000000000000000000000000000000b")
	if err != nil {
		t.Fatal(err)
	}
	if a.Compare(b) >= 0 {
		t.Errorf("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Errorf("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Errorf("expected a == a")
	}
}
