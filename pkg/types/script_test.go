package types

import "testing"

func TestLockupScriptTag_String(t *testing.T) {
	tests := []struct {
		tag  LockupScriptTag
		want string
	}{
		{LockupP2PKH, "P2PKH"},
		{LockupP2MPKH, "P2MPKH"},
		{LockupP2SH, "P2SH"},
		{LockupP2C, "P2C"},
		{LockupScriptTag(0xFF), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.want {
				t.Errorf("LockupScriptTag(%d).String() = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestLockupScript_Tags(t *testing.T) {
	if LockupP2PKH != 0 || LockupP2MPKH != 1 || LockupP2SH != 2 || LockupP2C != 3 {
		t.Fatal("lockup script tags must match the protocol's stable wire numbering")
	}
}

func TestLockupScript_BytesRoundTrip(t *testing.T) {
	var pk Address
	pk[0] = 0xaa
	l := P2PKH(pk)
	addr := LockupAddressString(l)
	parsed, err := ParseLockupAddress(addr)
	if err != nil {
		t.Fatalf("ParseLockupAddress: %v", err)
	}
	if parsed.Tag != LockupP2PKH || parsed.PKHash != pk {
		t.Errorf("round trip mismatch: got %+v", parsed)
	}
}

func TestLockupScript_P2MPKHRoundTrip(t *testing.T) {
	var a, b Address
	a[0], b[0] = 1, 2
	l := P2MPKH([]Address{a, b}, 2)
	addr := LockupAddressString(l)
	parsed, err := ParseLockupAddress(addr)
	if err != nil {
		t.Fatalf("ParseLockupAddress: %v", err)
	}
	if parsed.M != 2 || len(parsed.PKHashes) != 2 {
		t.Fatalf("round trip mismatch: got %+v", parsed)
	}
}

func TestUnlockScript_MatchesLockup(t *testing.T) {
	l := P2PKH(Address{})
	u := UnlockScript{Tag: UnlockP2PKH}
	if !u.MatchesLockup(l) {
		t.Error("matching tags should structurally match")
	}
	bad := UnlockScript{Tag: UnlockP2SH}
	if bad.MatchesLockup(l) {
		t.Error("mismatched tags should not structurally match")
	}
	p2c := P2C(Hash{0x1})
	if u.MatchesLockup(p2c) {
		t.Error("no unlock script should structurally match P2C")
	}
}

func TestLockupScript_GroupIndexOf(t *testing.T) {
	identity := func(b []byte) Hash {
		var h Hash
		copy(h[:], b)
		return h
	}
	l := P2PKH(Address{0xff})
	g := l.GroupIndexOf(identity, 4)
	if g < 0 || int(g) >= 4 {
		t.Fatalf("group index %d out of range", g)
	}
}
