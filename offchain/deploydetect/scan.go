package deploydetect

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/Abdullah1738/deployscan/offchain/solanarpc"
)

// deployMarkers are log fragments the loaders emit when installing code.
var deployMarkers = []string{
	"Deployed program",
	"Program deployed",
	"Instruction: DeployWithMaxDataLen",
}

const successMarker = "success"

// ScannedTx pairs a signature with its fetched transaction. Tx is nil when
// the node no longer serves the transaction.
type ScannedTx struct {
	Signature solanarpc.SignatureInfo
	Tx        *solanarpc.Transaction
}

// BlockTime prefers the transaction's block time and falls back to the
// signature listing. Zero means the block predates timestamps.
func (s ScannedTx) BlockTime() int64 {
	if s.Tx != nil && s.Tx.BlockTime != nil {
		return *s.Tx.BlockTime
	}
	if s.Signature.BlockTime != nil {
		return *s.Signature.BlockTime
	}
	return 0
}

// SortBySlot returns a copy of sigs ordered oldest first. Equal slots keep
// their listing order.
func SortBySlot(sigs []solanarpc.SignatureInfo) []solanarpc.SignatureInfo {
	out := slices.Clone(sigs)
	slices.SortStableFunc(out, func(a, b solanarpc.SignatureInfo) int {
		return cmp.Compare(a.Slot, b.Slot)
	})
	return out
}

// Transactions fetches sigs one at a time, in the given order. Fetching
// stops as soon as the consumer stops ranging or a fetch fails.
func Transactions(ctx context.Context, ledger solanarpc.Ledger, sigs []solanarpc.SignatureInfo) iter.Seq2[ScannedTx, error] {
	return func(yield func(ScannedTx, error) bool) {
		for _, sig := range sigs {
			if err := ctx.Err(); err != nil {
				yield(ScannedTx{Signature: sig}, err)
				return
			}
			tx, err := ledger.ParsedTransaction(ctx, sig.Signature)
			if !yield(ScannedTx{Signature: sig, Tx: tx}, err) || err != nil {
				return
			}
		}
	}
}

// IsDeployment classifies a transaction by its logs: a loader deploy
// marker, or a line naming the program together with a success marker.
func IsDeployment(logs []string, programID string) bool {
	for _, line := range logs {
		for _, m := range deployMarkers {
			if strings.Contains(line, m) {
				return true
			}
		}
		if programID != "" && strings.Contains(line, programID) && strings.Contains(line, successMarker) {
			return true
		}
	}
	return false
}
