package solana

import "testing"

func TestIsNativeProgram(t *testing.T) {
	for _, s := range []string{
		"11111111111111111111111111111111",
		"Vote111111111111111111111111111111111111111",
		"ComputeBudget111111111111111111111111111111",
		"BPFLoaderUpgradeab1e11111111111111111111111",
	} {
		if !IsNativeProgramString(s) {
			t.Fatalf("%s: expected native", s)
		}
	}
	if IsNativeProgramString("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4") {
		t.Fatalf("user program reported as native")
	}
	if IsNativeProgramString("not-a-key") {
		t.Fatalf("garbage reported as native")
	}
}

func TestIsLoader(t *testing.T) {
	for _, id := range []Pubkey{BPFLoaderDeprecatedID, BPFLoaderID, BPFLoaderUpgradeableID, LoaderV4ID} {
		if !IsLoader(id) {
			t.Fatalf("%s: expected loader", id)
		}
	}
	if IsLoader(SystemProgramID) {
		t.Fatalf("system program is not a loader")
	}
	if IsLoaderString("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA") {
		t.Fatalf("token program is not a loader")
	}
}

func TestParsePubkey_RoundTripBase58(t *testing.T) {
	const s = "BPFLoaderUpgradeab1e11111111111111111111111"
	pk, err := ParsePubkey(s)
	if err != nil {
		t.Fatalf("ParsePubkey: %v", err)
	}
	if pk.Base58() != s || pk.String() != s {
		t.Fatalf("round trip: got %s", pk.Base58())
	}
	if pk.IsZero() {
		t.Fatalf("unexpected zero key")
	}
	if _, err := ParsePubkey("   "); err != ErrInvalidPubkey {
		t.Fatalf("want ErrInvalidPubkey, got %v", err)
	}
	if _, err := ParsePubkey("abc"); err != ErrInvalidPubkey {
		t.Fatalf("want ErrInvalidPubkey, got %v", err)
	}
}
