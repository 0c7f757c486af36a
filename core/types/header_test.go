package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func frontierHeader() *Header {
	return &Header{
		ParentHash:  BytesToHash([]byte{0x01}),
		UncleHash:   EmptyUncleHash,
		Coinbase:    BytesToAddress([]byte{0x02}),
		Root:        EmptyRootHash,
		TxHash:      EmptyRootHash,
		ReceiptHash: EmptyRootHash,
		Difficulty:  big.NewInt(131072),
		Number:      big.NewInt(1),
		GasLimit:    5000,
		GasUsed:     0,
		Time:        10,
		Extra:       []byte("extra"),
		MixDigest:   BytesToHash([]byte{0x03}),
		Nonce:       EncodeNonce(42),
	}
}

func cancunHeader() *Header {
	h := frontierHeader()
	h.Difficulty = new(big.Int)
	h.BaseFee = big.NewInt(1_000_000_000)
	wh := EmptyRootHash
	h.WithdrawalsHash = &wh
	used, excess := uint64(131072), uint64(393216)
	h.BlobGasUsed = &used
	h.ExcessBlobGas = &excess
	beacon := BytesToHash([]byte{0x04})
	h.ParentBeaconRoot = &beacon
	return h
}

func TestHeaderRLPRoundTripFrontier(t *testing.T) {
	h := frontierHeader()
	enc, err := h.EncodeRLP()
	require.NoError(t, err)

	decoded, err := DecodeHeaderRLP(enc)
	require.NoError(t, err)

	reenc, err := decoded.EncodeRLP()
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
	require.Equal(t, h.Hash(), decoded.Hash())
	require.Nil(t, decoded.BaseFee)
	require.Nil(t, decoded.WithdrawalsHash)
}

func TestHeaderRLPRoundTripCancun(t *testing.T) {
	h := cancunHeader()
	enc, err := h.EncodeRLP()
	require.NoError(t, err)

	decoded, err := DecodeHeaderRLP(enc)
	require.NoError(t, err)
	require.Equal(t, h.Hash(), decoded.Hash())
	require.NotNil(t, decoded.BaseFee)
	require.Zero(t, decoded.BaseFee.Cmp(h.BaseFee))
	require.NotNil(t, decoded.WithdrawalsHash)
	require.Equal(t, *h.WithdrawalsHash, *decoded.WithdrawalsHash)
	require.Equal(t, *h.BlobGasUsed, *decoded.BlobGasUsed)
	require.Equal(t, *h.ExcessBlobGas, *decoded.ExcessBlobGas)
	require.Equal(t, *h.ParentBeaconRoot, *decoded.ParentBeaconRoot)
}

func TestHeaderHashChangesWithContent(t *testing.T) {
	a := frontierHeader()
	b := frontierHeader()
	b.GasUsed = 1
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestCopyHeaderIsDeep(t *testing.T) {
	h := cancunHeader()
	cpy := CopyHeader(h)
	cpy.Number.SetUint64(99)
	cpy.Extra[0] = 'X'
	*cpy.BlobGasUsed = 7

	require.Equal(t, int64(1), h.Number.Int64())
	require.Equal(t, byte('e'), h.Extra[0])
	require.Equal(t, uint64(131072), *h.BlobGasUsed)
}

func TestBloom(t *testing.T) {
	var b Bloom
	b.Add([]byte("topic-one"))
	require.True(t, b.Test([]byte("topic-one")))
	require.False(t, b.Test([]byte("topic-two")))

	logs := []*Log{{
		Address: BytesToAddress([]byte{0x01}),
		Topics:  []Hash{BytesToHash([]byte("t"))},
	}}
	lb := LogsBloom(logs)
	require.True(t, lb.Test(BytesToAddress([]byte{0x01}).Bytes()))
	require.True(t, lb.Test(BytesToHash([]byte("t")).Bytes()))
}

func TestReceiptRLPRoundTrip(t *testing.T) {
	r := &Receipt{
		Type:              DynamicFeeTxType,
		Status:            ReceiptStatusSuccessful,
		CumulativeGasUsed: 42000,
		Logs: []*Log{{
			Address: BytesToAddress([]byte{0x07}),
			Topics:  []Hash{BytesToHash([]byte{0x01}), BytesToHash([]byte{0x02})},
			Data:    []byte("payload"),
		}},
	}
	r.Bloom = LogsBloom(r.Logs)

	enc, err := r.EncodeRLP()
	require.NoError(t, err)
	require.Equal(t, byte(DynamicFeeTxType), enc[0])

	decoded, err := DecodeReceipt(enc)
	require.NoError(t, err)
	require.Equal(t, r.Status, decoded.Status)
	require.Equal(t, r.CumulativeGasUsed, decoded.CumulativeGasUsed)
	require.Equal(t, r.Bloom, decoded.Bloom)
	require.Len(t, decoded.Logs, 1)
	require.Equal(t, r.Logs[0].Topics, decoded.Logs[0].Topics)
	require.Equal(t, r.Logs[0].Data, decoded.Logs[0].Data)
}

func TestReceiptPreByzantiumRoot(t *testing.T) {
	r := &Receipt{
		PostState:         EmptyRootHash.Bytes(),
		CumulativeGasUsed: 21000,
	}
	enc, err := r.EncodeRLP()
	require.NoError(t, err)

	decoded, err := DecodeReceipt(enc)
	require.NoError(t, err)
	require.Equal(t, EmptyRootHash.Bytes(), decoded.PostState)
}

func TestBodyRLPRoundTrip(t *testing.T) {
	txs := sampleTxs()
	body := &Body{
		Transactions: []*Transaction{txs["legacy"], txs["dynamic fee"]},
		Withdrawals: []*Withdrawal{{
			Index:          0,
			ValidatorIndex: 7,
			Address:        BytesToAddress([]byte{0x09}),
			Amount:         1_000_000_000,
		}},
	}
	enc, err := EncodeBodyRLP(body)
	require.NoError(t, err)

	decoded, err := DecodeBodyRLP(enc)
	require.NoError(t, err)
	require.Len(t, decoded.Transactions, 2)
	require.Equal(t, body.Transactions[0].Hash(), decoded.Transactions[0].Hash())
	require.Equal(t, body.Transactions[1].Hash(), decoded.Transactions[1].Hash())
	require.Len(t, decoded.Withdrawals, 1)
	require.Equal(t, *body.Withdrawals[0], *decoded.Withdrawals[0])
}

func TestBlockRLPRoundTrip(t *testing.T) {
	block := NewBlock(cancunHeader(), &Body{
		Transactions: []*Transaction{sampleTxs()["blob"]},
		Withdrawals:  []*Withdrawal{},
	})
	enc, err := EncodeBlockRLP(block)
	require.NoError(t, err)

	decoded, err := DecodeBlockRLP(enc)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), decoded.Hash())
	require.Len(t, decoded.Transactions(), 1)
	require.Equal(t, block.Transactions()[0].Hash(), decoded.Transactions()[0].Hash())
	require.NotNil(t, decoded.Withdrawals())
}
