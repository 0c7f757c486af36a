package types

import (
	"math/big"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func addrPtr(b byte) *Address {
	a := BytesToAddress([]byte{b})
	return &a
}

func sampleTxs() map[string]*Transaction {
	to := BytesToAddress([]byte{0xaa})
	return map[string]*Transaction{
		"legacy": NewTransaction(&LegacyTx{
			Nonce:    3,
			GasPrice: big.NewInt(1_000_000_000),
			Gas:      21000,
			To:       addrPtr(0x01),
			Value:    big.NewInt(100),
			Data:     nil,
			V:        big.NewInt(27),
			R:        big.NewInt(10),
			S:        big.NewInt(11),
		}),
		"legacy create": NewTransaction(&LegacyTx{
			Nonce:    0,
			GasPrice: big.NewInt(1),
			Gas:      100000,
			To:       nil,
			Value:    new(big.Int),
			Data:     []byte{0x60, 0x00},
			V:        big.NewInt(38),
			R:        big.NewInt(12),
			S:        big.NewInt(13),
		}),
		"access list": NewTransaction(&AccessListTx{
			ChainID:  big.NewInt(1),
			Nonce:    1,
			GasPrice: big.NewInt(500),
			Gas:      60000,
			To:       addrPtr(0x02),
			Value:    big.NewInt(42),
			AccessList: AccessList{{
				Address:     BytesToAddress([]byte{0xbb}),
				StorageKeys: []Hash{BytesToHash([]byte{0x01})},
			}},
			V: big.NewInt(1), R: big.NewInt(2), S: big.NewInt(3),
		}),
		"dynamic fee": NewTransaction(&DynamicFeeTx{
			ChainID:    big.NewInt(1),
			Nonce:      9,
			GasTipCap:  big.NewInt(80),
			GasFeeCap:  big.NewInt(150),
			Gas:        30000,
			To:         addrPtr(0x03),
			Value:      big.NewInt(7),
			Data:       []byte{0x01, 0x00, 0x02},
			AccessList: AccessList{},
			V:          big.NewInt(0), R: big.NewInt(4), S: big.NewInt(5),
		}),
		"blob": NewTransaction(&BlobTx{
			ChainID:    big.NewInt(1),
			Nonce:      2,
			GasTipCap:  big.NewInt(1),
			GasFeeCap:  big.NewInt(2),
			Gas:        21000,
			To:         to,
			Value:      new(big.Int),
			AccessList: AccessList{},
			BlobFeeCap: big.NewInt(99),
			BlobHashes: []Hash{
				{0x01, 0xde, 0xad},
				{0x01, 0xbe, 0xef},
			},
			V: big.NewInt(1), R: big.NewInt(6), S: big.NewInt(7),
		}),
		"set code": NewTransaction(&SetCodeTx{
			ChainID:    big.NewInt(1),
			Nonce:      5,
			GasTipCap:  big.NewInt(10),
			GasFeeCap:  big.NewInt(20),
			Gas:        80000,
			To:         to,
			Value:      new(big.Int),
			AccessList: AccessList{},
			AuthList: []Authorization{{
				ChainID: big.NewInt(1),
				Address: BytesToAddress([]byte{0xcc}),
				Nonce:   4,
				V:       big.NewInt(0),
				R:       big.NewInt(8),
				S:       big.NewInt(9),
			}},
			V: big.NewInt(0), R: big.NewInt(14), S: big.NewInt(15),
		}),
	}
}

func TestTransactionRLPRoundTrip(t *testing.T) {
	for name, tx := range sampleTxs() {
		t.Run(name, func(t *testing.T) {
			enc, err := tx.EncodeRLP()
			require.NoError(t, err)

			decoded, err := DecodeTransaction(enc)
			require.NoError(t, err)

			reenc, err := decoded.EncodeRLP()
			require.NoError(t, err)
			require.Equal(t, enc, reenc, "re-encoding differs")
			require.Equal(t, tx.Hash(), decoded.Hash())
			require.Equal(t, tx.Type(), decoded.Type())
			require.Equal(t, tx.Nonce(), decoded.Nonce())
			require.Equal(t, tx.Gas(), decoded.Gas())
		})
	}
}

func TestTypedEnvelopeDetection(t *testing.T) {
	txs := sampleTxs()

	enc, err := txs["legacy"].EncodeRLP()
	require.NoError(t, err)
	require.GreaterOrEqual(t, enc[0], byte(0xc0), "legacy tx must be an RLP list")

	enc, err = txs["blob"].EncodeRLP()
	require.NoError(t, err)
	require.Equal(t, byte(BlobTxType), enc[0])

	_, err = DecodeTransaction([]byte{0x05, 0xc0})
	require.ErrorIs(t, err, ErrTxTypeNotSupported)
}

func TestSenderRecovery(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	want := BytesToAddress(keccak256(gethcrypto.FromECDSAPub(&key.PublicKey)[1:])[12:])

	sign := func(hash Hash) ([]byte, error) {
		return gethcrypto.Sign(hash[:], key)
	}

	t.Run("eip155 legacy", func(t *testing.T) {
		signer := NewEIP155Signer(big.NewInt(1337))
		tx := NewTransaction(&LegacyTx{
			Nonce:    0,
			GasPrice: big.NewInt(1),
			Gas:      21000,
			To:       addrPtr(0x01),
			Value:    big.NewInt(5),
		})
		signed, err := SignTx(tx, signer, sign)
		require.NoError(t, err)

		from, err := signer.Sender(signed)
		require.NoError(t, err)
		require.Equal(t, want, from)
	})

	t.Run("homestead legacy", func(t *testing.T) {
		signer := HomesteadSigner{}
		tx := NewTransaction(&LegacyTx{
			Nonce:    1,
			GasPrice: big.NewInt(1),
			Gas:      21000,
			To:       addrPtr(0x02),
			Value:    big.NewInt(5),
		})
		signed, err := SignTx(tx, signer, sign)
		require.NoError(t, err)

		from, err := signer.Sender(signed)
		require.NoError(t, err)
		require.Equal(t, want, from)
	})

	t.Run("dynamic fee", func(t *testing.T) {
		signer := NewLondonSigner(big.NewInt(1337))
		tx := NewTransaction(&DynamicFeeTx{
			ChainID:   big.NewInt(1337),
			Nonce:     0,
			GasTipCap: big.NewInt(2),
			GasFeeCap: big.NewInt(10),
			Gas:       21000,
			To:        addrPtr(0x03),
			Value:     big.NewInt(1),
		})
		signed, err := SignTx(tx, signer, sign)
		require.NoError(t, err)

		from, err := signer.Sender(signed)
		require.NoError(t, err)
		require.Equal(t, want, from)
	})

	t.Run("wrong chain id rejected", func(t *testing.T) {
		signer := NewLondonSigner(big.NewInt(1337))
		tx := NewTransaction(&DynamicFeeTx{
			ChainID: big.NewInt(7),
			Gas:     21000,
			To:      addrPtr(0x04),
		})
		signed, err := SignTx(tx, signer, sign)
		require.NoError(t, err)
		_, err = signer.Sender(signed)
		require.ErrorIs(t, err, ErrInvalidChainID)
	})
}

func TestAuthorizationAuthority(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	want := BytesToAddress(keccak256(gethcrypto.FromECDSAPub(&key.PublicKey)[1:])[12:])

	auth := Authorization{
		ChainID: big.NewInt(1337),
		Address: BytesToAddress([]byte{0xdd}),
		Nonce:   0,
	}
	hash := AuthorizationSigningHash(&auth)
	sig, err := gethcrypto.Sign(hash[:], key)
	require.NoError(t, err)
	auth.V = new(big.Int).SetUint64(uint64(sig[64]))
	auth.R = new(big.Int).SetBytes(sig[:32])
	auth.S = new(big.Int).SetBytes(sig[32:64])

	got, err := auth.Authority()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDeriveChainID(t *testing.T) {
	require.Zero(t, DeriveChainID(big.NewInt(27)).Sign())
	require.Zero(t, DeriveChainID(big.NewInt(28)).Sign())
	// v = 1337*2 + 35 = 2709 (parity 0), 2710 (parity 1).
	require.Equal(t, int64(1337), DeriveChainID(big.NewInt(2709)).Int64())
	require.Equal(t, int64(1337), DeriveChainID(big.NewInt(2710)).Int64())
}

func TestDelegationDesignator(t *testing.T) {
	delegate := BytesToAddress([]byte{0xaa, 0xbb})
	code := MakeDelegationCode(delegate)
	require.True(t, HasDelegationPrefix(code))

	parsed, ok := ParseDelegation(code)
	require.True(t, ok)
	require.Equal(t, delegate, parsed)

	require.False(t, HasDelegationPrefix([]byte{0xef, 0x01, 0x00}))
	require.False(t, HasDelegationPrefix(nil))
}

func TestBlobGas(t *testing.T) {
	tx := sampleTxs()["blob"]
	require.Equal(t, uint64(2*BlobTxBlobGasPerBlob), tx.BlobGas())
	require.Zero(t, sampleTxs()["legacy"].BlobGas())
}
