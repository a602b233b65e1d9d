package core

import (
	"bytes"
	"context"
	"math/big"
	"slices"
)

var genesisMarkerKey = []byte("genesis/applied")

// ApplyGenesis credits the configured allocations exactly once per database.
// It reports whether this call applied them.
func (n *Node) ApplyGenesis(ctx context.Context, allocs map[[20]byte]*big.Int) (bool, error) {
	addrs := make([][20]byte, 0, len(allocs))
	for addr := range allocs {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b [20]byte) int { return bytes.Compare(a[:], b[:]) })

	applied := false
	err := n.mutate(ctx, "ApplyGenesis", n.owner, false, func(e *engines) error {
		var done bool
		ok, err := e.kv.KVGet(genesisMarkerKey, &done)
		if err != nil {
			return err
		}
		if ok && done {
			return nil
		}
		for _, addr := range addrs {
			if err := e.bank.Credit(addr, allocs[addr]); err != nil {
				return err
			}
		}
		applied = true
		return e.kv.KVPut(genesisMarkerKey, true)
	})
	return applied, err
}
