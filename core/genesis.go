package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

// GenesisParentHash is the parent hash of every genesis block.
var GenesisParentHash = types.Hash{}

// GenesisAccount is one pre-funded account in the genesis allocation.
type GenesisAccount struct {
	Balance *big.Int
	Code    []byte
	Nonce   uint64
	Storage map[types.Hash]types.Hash
}

// GenesisAlloc maps addresses to their genesis accounts.
type GenesisAlloc map[types.Address]GenesisAccount

// Genesis describes the fields of a genesis block. Absent fields take
// the protocol defaults: zero parent hash, empty uncle list, blank
// transaction and receipt roots, zero bloom, block number zero, zero
// gas used, and a state root computed from the allocation.
type Genesis struct {
	Config     *ChainConfig
	Nonce      uint64
	Timestamp  uint64
	ExtraData  []byte
	GasLimit   uint64
	Difficulty *big.Int
	MixHash    types.Hash
	Coinbase   types.Address
	Alloc      GenesisAlloc

	// Optional overrides.
	Number     uint64
	GasUsed    uint64
	ParentHash types.Hash
	StateRoot  *types.Hash // computed from Alloc when nil
	BaseFee    *big.Int

	ExcessBlobGas *uint64
	BlobGasUsed   *uint64
}

// applyAlloc seeds the allocation into a fresh state.
func (g *Genesis) applyAlloc(statedb *state.StateDB) {
	for addr, account := range g.Alloc {
		if account.Balance != nil {
			statedb.SetBalance(addr, account.Balance)
		} else {
			statedb.TouchAccount(addr)
			statedb.SetBalance(addr, new(big.Int))
		}
		if account.Nonce != 0 {
			statedb.SetNonce(addr, account.Nonce)
		}
		if len(account.Code) > 0 {
			statedb.SetCode(addr, account.Code)
		}
		if len(account.Storage) > 0 {
			statedb.SetStorage(addr, account.Storage)
		}
	}
}

// ToHeader builds the genesis header, computing the state root from the
// allocation unless an explicit root was supplied.
func (g *Genesis) ToHeader(statedb *state.StateDB) (*types.Header, error) {
	root := types.EmptyRootHash
	if g.StateRoot != nil {
		root = *g.StateRoot
	} else if statedb != nil {
		var err error
		root, err = statedb.MakeStateRoot()
		if err != nil {
			return nil, err
		}
	}

	header := &types.Header{
		ParentHash:  g.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    g.Coinbase,
		Root:        root,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  g.Difficulty,
		Number:      new(big.Int).SetUint64(g.Number),
		GasLimit:    g.GasLimit,
		GasUsed:     g.GasUsed,
		Time:        g.Timestamp,
		MixDigest:   g.MixHash,
		Nonce:       types.EncodeNonce(g.Nonce),
	}
	if g.Difficulty == nil {
		header.Difficulty = new(big.Int)
	}
	if len(g.ExtraData) > 0 {
		header.Extra = append([]byte(nil), g.ExtraData...)
	}

	num := new(big.Int).SetUint64(g.Number)
	if g.BaseFee != nil {
		header.BaseFee = new(big.Int).Set(g.BaseFee)
	} else if g.Config != nil && g.Config.IsLondon(num) {
		header.BaseFee = big.NewInt(InitialBaseFee)
	}
	if g.Config != nil && g.Config.IsShanghai(g.Timestamp) {
		wh := types.EmptyRootHash
		header.WithdrawalsHash = &wh
	}
	if g.Config != nil && g.Config.IsCancun(g.Timestamp) {
		excess, used := uint64(0), uint64(0)
		if g.ExcessBlobGas != nil {
			excess = *g.ExcessBlobGas
		}
		if g.BlobGasUsed != nil {
			used = *g.BlobGasUsed
		}
		header.ExcessBlobGas = &excess
		header.BlobGasUsed = &used
		beaconRoot := types.Hash{}
		header.ParentBeaconRoot = &beaconRoot
	}
	return header, nil
}

// Commit initializes the genesis state over db, persists it together
// with the genesis header and chain indices, and returns the block and
// the live state.
func (g *Genesis) Commit(db rawdb.Database) (*types.Block, *state.StateDB, error) {
	statedb := state.New(db)
	g.applyAlloc(statedb)

	header, err := g.ToHeader(statedb)
	if err != nil {
		return nil, nil, err
	}
	// A supplied state-root override skips root computation in ToHeader;
	// Persist still needs a fresh root over the allocation.
	if g.StateRoot != nil {
		if _, err := statedb.MakeStateRoot(); err != nil {
			return nil, nil, err
		}
	}
	if _, err := statedb.Persist(); err != nil {
		return nil, nil, err
	}
	statedb.Finalise(false)

	block := types.NewBlock(header, nil)
	hash := block.Hash()

	if _, err := rawdb.WriteHeader(db, header); err != nil {
		return nil, nil, err
	}
	if err := rawdb.WriteCanonicalHash(db, g.Number, hash); err != nil {
		return nil, nil, err
	}
	if err := rawdb.WriteCanonicalHead(db, hash); err != nil {
		return nil, nil, err
	}
	if err := rawdb.WriteScore(db, hash, header.Difficulty); err != nil {
		return nil, nil, err
	}
	if err := rawdb.WriteChainGaps(db, rawdb.GenesisChainGaps()); err != nil {
		return nil, nil, err
	}
	return block, statedb, nil
}
