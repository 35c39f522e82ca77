package solana

var (
	SystemProgramID             = mustParsePubkey("11111111111111111111111111111111")
	VoteProgramID               = mustParsePubkey("Vote111111111111111111111111111111111111111")
	StakeProgramID              = mustParsePubkey("Stake11111111111111111111111111111111111111")
	ConfigProgramID             = mustParsePubkey("Config1111111111111111111111111111111111111")
	ComputeBudgetProgramID      = mustParsePubkey("ComputeBudget111111111111111111111111111111")
	AddressLookupTableProgramID = mustParsePubkey("AddressLookupTab1e1111111111111111111111111")
	Ed25519ProgramID            = mustParsePubkey("Ed25519SigVerify111111111111111111111111111")
	Secp256k1ProgramID          = mustParsePubkey("KeccakSecp256k11111111111111111111111111111")
	Secp256r1ProgramID          = mustParsePubkey("Secp256r1SigVerify1111111111111111111111111")
	NativeLoaderID              = mustParsePubkey("NativeLoader1111111111111111111111111111111")
	SysvarOwnerID               = mustParsePubkey("Sysvar1111111111111111111111111111111111111")
	FeatureProgramID            = mustParsePubkey("Feature111111111111111111111111111111111111")
	ZkElGamalProofProgramID     = mustParsePubkey("ZkE1Gama1Proof11111111111111111111111111111")

	BPFLoaderDeprecatedID  = mustParsePubkey("BPFLoader1111111111111111111111111111111111")
	BPFLoaderID            = mustParsePubkey("BPFLoader2111111111111111111111111111111111")
	BPFLoaderUpgradeableID = mustParsePubkey("BPFLoaderUpgradeab1e11111111111111111111111")
	LoaderV4ID             = mustParsePubkey("LoaderV411111111111111111111111111111111111")
)

// nativePrograms are built into the validator and never have a deployment
// transaction. Built once; there is no way to register more at runtime.
var nativePrograms = newPubkeySet(
	SystemProgramID,
	VoteProgramID,
	StakeProgramID,
	ConfigProgramID,
	ComputeBudgetProgramID,
	AddressLookupTableProgramID,
	Ed25519ProgramID,
	Secp256k1ProgramID,
	Secp256r1ProgramID,
	NativeLoaderID,
	SysvarOwnerID,
	FeatureProgramID,
	ZkElGamalProofProgramID,
	BPFLoaderDeprecatedID,
	BPFLoaderID,
	BPFLoaderUpgradeableID,
	LoaderV4ID,
)

// loaders are the only valid owners of executable program accounts.
var loaders = newPubkeySet(
	BPFLoaderDeprecatedID,
	BPFLoaderID,
	BPFLoaderUpgradeableID,
	LoaderV4ID,
)

type pubkeySet map[Pubkey]struct{}

func newPubkeySet(keys ...Pubkey) pubkeySet {
	s := make(pubkeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s pubkeySet) has(k Pubkey) bool {
	_, ok := s[k]
	return ok
}

// IsNativeProgram reports whether id is a builtin program.
func IsNativeProgram(id Pubkey) bool { return nativePrograms.has(id) }

// IsNativeProgramString is IsNativeProgram for an address that may not parse.
func IsNativeProgramString(s string) bool {
	id, err := ParsePubkey(s)
	if err != nil {
		return false
	}
	return IsNativeProgram(id)
}

// IsLoader reports whether id may own a program account.
func IsLoader(id Pubkey) bool { return loaders.has(id) }

// IsLoaderString is IsLoader for an address that may not parse.
func IsLoaderString(s string) bool {
	id, err := ParsePubkey(s)
	if err != nil {
		return false
	}
	return IsLoader(id)
}

func mustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}
