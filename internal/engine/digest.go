package engine

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// DigestSize is the length of the answer commitment in bytes.
const DigestSize = 32

// AnswerDigestFor computes the commitment digest for a candidate value:
// keccak-256 over the candidate's 32-byte big-endian encoding.
//
// Deploy-time commitment and guess evaluation both go through this single
// path. Changing the encoding here would silently break every deployed
// commitment, so it is frozen: 24 zero bytes followed by the candidate as a
// big-endian uint64.
func AnswerDigestFor(candidate uint64) []byte {
	var buf [DigestSize]byte
	binary.BigEndian.PutUint64(buf[24:], candidate)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	return h.Sum(nil)
}
