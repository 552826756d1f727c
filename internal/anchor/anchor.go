// Package anchor holds the encoding conventions shared by the Anchor programs the
// orchestrator talks to.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Discriminator returns the 8-byte instruction discriminator sha256("global:<name>")[:8].
func Discriminator(name string) [8]byte {
	return hashPrefix("global:" + name)
}

// AccountDiscriminator returns sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) [8]byte {
	return hashPrefix("account:" + name)
}

func hashPrefix(s string) [8]byte {
	sum := sha256.Sum256([]byte(s))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// CheckAccount verifies data starts with the discriminator of account type name.
func CheckAccount(data []byte, name string) error {
	want := AccountDiscriminator(name)
	if len(data) < 8 {
		return fmt.Errorf("%s: data too short", name)
	}
	if !bytes.Equal(data[:8], want[:]) {
		return fmt.Errorf("%s: discriminator mismatch", name)
	}
	return nil
}

// EventAuthority derives the "__event_authority" PDA used by emit_cpi programs.
func EventAuthority(program solana.PublicKey) solana.PublicKey {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, program)
	if err != nil {
		panic(fmt.Sprintf("event authority for %s: %v", program, err))
	}
	return pda
}

// Args accumulates Borsh-encoded instruction arguments after the discriminator.
// The first encoding error sticks and is returned by Build.
type Args struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func NewArgs(instruction string) *Args {
	buf := new(bytes.Buffer)
	d := Discriminator(instruction)
	buf.Write(d[:])
	return &Args{buf: buf, enc: bin.NewBorshEncoder(buf)}
}

func (a *Args) U8(v uint8) *Args {
	if a.err == nil {
		a.err = a.enc.WriteUint8(v)
	}
	return a
}

func (a *Args) Bool(v bool) *Args {
	if a.err == nil {
		a.err = a.enc.WriteBool(v)
	}
	return a
}

func (a *Args) U16(v uint16) *Args {
	if a.err == nil {
		a.err = a.enc.WriteUint16(v, binary.LittleEndian)
	}
	return a
}

func (a *Args) I32(v int32) *Args {
	if a.err == nil {
		a.err = a.enc.WriteInt32(v, binary.LittleEndian)
	}
	return a
}

func (a *Args) U64(v uint64) *Args {
	if a.err == nil {
		a.err = a.enc.WriteUint64(v, binary.LittleEndian)
	}
	return a
}

// U128 writes a non-negative big integer as little-endian u128.
func (a *Args) U128(v *big.Int) *Args {
	if a.err != nil {
		return a
	}
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		a.err = fmt.Errorf("value %v does not fit in u128", v)
		return a
	}
	le := make([]byte, 16)
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	binary.LittleEndian.PutUint64(le[:8], lo)
	binary.LittleEndian.PutUint64(le[8:], hi)
	return a.Bytes(le)
}

func (a *Args) Bytes(b []byte) *Args {
	if a.err == nil {
		a.err = a.enc.WriteBytes(b, false)
	}
	return a
}

func (a *Args) Pubkey(pk solana.PublicKey) *Args {
	return a.Bytes(pk[:])
}

// OptionPubkey writes a Borsh Option<Pubkey>.
func (a *Args) OptionPubkey(pk *solana.PublicKey) *Args {
	if pk == nil {
		return a.U8(0)
	}
	return a.U8(1).Pubkey(*pk)
}

// OptionU64 writes a Borsh Option<u64>.
func (a *Args) OptionU64(v *uint64) *Args {
	if v == nil {
		return a.U8(0)
	}
	return a.U8(1).U64(*v)
}

func (a *Args) Build() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.buf.Bytes(), nil
}

// ReadU128 decodes a little-endian u128 into a big.Int.
func ReadU128(dec *bin.Decoder) (*big.Int, error) {
	b, err := dec.ReadNBytes(16)
	if err != nil {
		return nil, err
	}
	hi := new(big.Int).SetUint64(binary.LittleEndian.Uint64(b[8:]))
	lo := new(big.Int).SetUint64(binary.LittleEndian.Uint64(b[:8]))
	return hi.Lsh(hi, 64).Or(hi, lo), nil
}

// ReadPubkey decodes 32 raw bytes.
func ReadPubkey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}
