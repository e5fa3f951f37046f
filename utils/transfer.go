package utils

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Transfer is a decoded SystemProgram.Transfer instruction.
type Transfer struct {
	FeePayer  solana.PublicKey
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Blockhash solana.Hash
}

var ErrNotTransfer = errors.New("not a single system transfer")

// DecodeTransfer extracts the only instruction of msg and requires it to be a
// system transfer. Messages with any other instruction are rejected.
func DecodeTransfer(msg *solana.Message) (*Transfer, error) {
	if len(msg.AccountKeys) == 0 {
		return nil, fmt.Errorf("%w: no account keys", ErrNotTransfer)
	}
	if len(msg.Instructions) != 1 {
		return nil, fmt.Errorf("%w: %d instructions", ErrNotTransfer, len(msg.Instructions))
	}
	inst := msg.Instructions[0]

	programID, err := accountAt(msg, inst.ProgramIDIndex)
	if err != nil {
		return nil, err
	}
	if !programID.Equals(solana.SystemProgramID) {
		return nil, fmt.Errorf("%w: program %s", ErrNotTransfer, programID)
	}

	// Transfer layout: u32 variant (2), u64 lamports, both little-endian.
	data := []byte(inst.Data)
	if len(data) != 12 {
		return nil, fmt.Errorf("%w: data length %d", ErrNotTransfer, len(data))
	}
	if variant := binary.LittleEndian.Uint32(data[:4]); variant != system.Instruction_Transfer {
		return nil, fmt.Errorf("%w: system instruction %d", ErrNotTransfer, variant)
	}
	if len(inst.Accounts) != 2 {
		return nil, fmt.Errorf("%w: %d accounts", ErrNotTransfer, len(inst.Accounts))
	}
	from, err := accountAt(msg, inst.Accounts[0])
	if err != nil {
		return nil, err
	}
	to, err := accountAt(msg, inst.Accounts[1])
	if err != nil {
		return nil, err
	}

	return &Transfer{
		FeePayer:  msg.AccountKeys[0],
		From:      from,
		To:        to,
		Lamports:  binary.LittleEndian.Uint64(data[4:]),
		Blockhash: msg.RecentBlockhash,
	}, nil
}

func accountAt(msg *solana.Message, idx uint16) (solana.PublicKey, error) {
	if int(idx) >= len(msg.AccountKeys) {
		return solana.PublicKey{}, fmt.Errorf("%w: account index %d out of range", ErrNotTransfer, idx)
	}
	return msg.AccountKeys[idx], nil
}
