package vm

import "golang.org/x/crypto/ripemd160"

// ripemd160Sum computes the RIPEMD-160 digest (20 bytes).
func ripemd160Sum(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}
