package svm

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// AssociatedTokenAddress derives the associated token account of owner for
// mint. tokenProgram is part of the seed, so Token-2022 mints get a different
// address than classic SPL mints.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token account: %w", err)
	}
	return address, nil
}

func computeBudgetInstructions() ([]solana.Instruction, error) {
	limit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(DefaultComputeUnitLimit).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}
	price, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(DefaultComputeUnitPrice).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute price instruction: %w", err)
	}
	return []solana.Instruction{limit, price}, nil
}

func nativeTransferInstruction(lamports uint64, from, to solana.PublicKey) (solana.Instruction, error) {
	ix, err := system.NewTransferInstruction(lamports, from, to).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	return ix, nil
}

// createAssociatedTokenAccountIdempotent creates owner's token account for
// mint unless it already exists
func createAssociatedTokenAccountIdempotent(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(tokenProgram, false, false),
		},
		[]byte{ataCreateIdempotent},
	), nil
}

// transferCheckedInstruction builds TransferChecked for either token program
func transferCheckedInstruction(
	amount uint64,
	decimals uint8,
	source, mint, destination, owner, tokenProgram solana.PublicKey,
) (solana.Instruction, error) {
	ix, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(decimals).
		SetSourceAccount(source).
		SetMintAccount(mint).
		SetDestinationAccount(destination).
		SetOwnerAccount(owner).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer instruction: %w", err)
	}
	// the builder targets the classic token program
	return solana.NewInstruction(tokenProgram, ix.Accounts(), data), nil
}

func memoInstruction(memo string, signer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(signer, false, true)},
		[]byte(memo),
	)
}

// EncodeTransaction serializes tx to base64 wire format
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire transaction
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("transaction is not base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// Transfer is a value movement found in a transaction. Mint is zero for SOL.
type Transfer struct {
	Program     solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
}

// ParseTransfers extracts system transfers, TransferChecked calls and memos
// from the top-level instructions of tx
func ParseTransfers(tx *solana.Transaction) ([]Transfer, []string, error) {
	var (
		transfers []Transfer
		memos     []string
	)
	for i, inst := range tx.Message.Instructions {
		program, err := accountAt(tx, inst.ProgramIDIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts := make([]*solana.AccountMeta, 0, len(inst.Accounts))
		for _, idx := range inst.Accounts {
			key, err := accountAt(tx, idx)
			if err != nil {
				return nil, nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			accounts = append(accounts, solana.NewAccountMeta(key, false, false))
		}

		switch {
		case program.Equals(solana.MemoProgramID):
			memos = append(memos, string(inst.Data))

		case program.Equals(solana.SystemProgramID):
			if len(inst.Data) < 4 || inst.Data[0] != systemTransferDiscriminant {
				continue
			}
			decoded, err := system.DecodeInstruction(accounts, inst.Data)
			if err != nil {
				continue
			}
			if t, ok := decoded.Impl.(*system.Transfer); ok && t.Lamports != nil {
				transfers = append(transfers, Transfer{
					Program:     program,
					Source:      t.GetFundingAccount().PublicKey,
					Destination: t.GetRecipientAccount().PublicKey,
					Amount:      *t.Lamports,
				})
			}

		case IsTokenProgram(program):
			if len(inst.Data) == 0 || inst.Data[0] != tokenTransferChecked {
				continue
			}
			decoded, err := token.DecodeInstruction(accounts, inst.Data)
			if err != nil {
				continue
			}
			if t, ok := decoded.Impl.(*token.TransferChecked); ok && t.Amount != nil {
				transfers = append(transfers, Transfer{
					Program:     program,
					Source:      t.GetSourceAccount().PublicKey,
					Destination: t.GetDestinationAccount().PublicKey,
					Mint:        t.GetMintAccount().PublicKey,
					Amount:      *t.Amount,
				})
			}
		}
	}
	return transfers, memos, nil
}

func accountAt(tx *solana.Transaction, index uint16) (solana.PublicKey, error) {
	if int(index) >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}, fmt.Errorf("account index %d out of range", index)
	}
	return tx.Message.AccountKeys[index], nil
}

// FeePayer returns the first account key, which pays fees and signs first
func FeePayer(tx *solana.Transaction) (solana.PublicKey, error) {
	if len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}, fmt.Errorf("transaction has no accounts")
	}
	return tx.Message.AccountKeys[0], nil
}
