package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"strconv"
)

// Seeds is the committed pair a fair raid is replayed from. Server is used
// as raw ASCII key material, never hex-decoded.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// Stream is the byte stream behind a seeded raid. Block n is
// HMAC-SHA256(Server, "Client:nonce:n") and bytes are read in order, so any
// position in the stream can be reached from (seeds, nonce, offset) alone.
type Stream struct {
	mac    hash.Hash
	prefix []byte
	block  uint64
	digest [sha256.Size]byte
	unread []byte
}

// Stream opens the stream for nonce, skipping the first offset bytes.
func (s Seeds) Stream(nonce, offset uint64) *Stream {
	st := &Stream{
		mac:    hmac.New(sha256.New, []byte(s.Server)),
		prefix: []byte(s.Client + ":" + strconv.FormatUint(nonce, 10) + ":"),
		block:  offset / sha256.Size,
	}
	st.fill()
	st.unread = st.unread[offset%sha256.Size:]
	return st
}

func (st *Stream) fill() {
	st.mac.Reset()
	st.mac.Write(st.prefix)
	st.mac.Write(strconv.AppendUint(nil, st.block, 10))
	st.unread = st.mac.Sum(st.digest[:0])
}

// Byte returns the next byte, hashing a new block when the current one runs out.
func (st *Stream) Byte() byte {
	if len(st.unread) == 0 {
		st.block++
		st.fill()
	}
	b := st.unread[0]
	st.unread = st.unread[1:]
	return b
}

// Float64 reads four bytes as a big-endian fraction of 2^32, which lands in [0, 1).
func (st *Stream) Float64() float64 {
	var word [4]byte
	for i := range word {
		word[i] = st.Byte()
	}
	return float64(binary.BigEndian.Uint32(word[:])) / (1 << 32)
}

// Floats draws n values from the stream for nonce starting at offset.
func (s Seeds) Floats(nonce, offset uint64, n int) []float64 {
	st := s.Stream(nonce, offset)
	out := make([]float64, n)
	for i := range out {
		out[i] = st.Float64()
	}
	return out
}
