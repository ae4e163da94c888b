package verifier

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	gate "github.com/mark3labs/x402-gate"
)

// ExtractSVMPayer decodes a base64 Solana transaction and returns the funding
// or owner account of the first recognized transfer instruction. Semantic
// validation of the transaction is the facilitator's job; this only
// identifies who is paying so the nonce registry and logs can key on it.
func ExtractSVMPayer(base64Transaction string) (string, error) {
	tx, err := solana.TransactionFromBase64(base64Transaction)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode transaction: %v", gate.ErrInvalidAuthorization, err)
	}

	for _, inst := range tx.Message.Instructions {
		prog, err := tx.Message.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil {
			continue
		}
		switch {
		case prog.Equals(solana.SystemProgramID):
			accountsMeta, err := inst.ResolveInstructionAccounts(&tx.Message)
			if err != nil {
				break
			}
			ix, err := system.DecodeInstruction(accountsMeta, inst.Data)
			if err != nil {
				break
			}
			if t, ok := ix.Impl.(*system.Transfer); ok {
				return t.GetFundingAccount().PublicKey.String(), nil
			}
		case prog.Equals(solana.TokenProgramID):
			accountsMeta, err := inst.ResolveInstructionAccounts(&tx.Message)
			if err != nil {
				break
			}
			ix, err := token.DecodeInstruction(accountsMeta, inst.Data)
			if err != nil {
				break
			}
			switch t := ix.Impl.(type) {
			case *token.Transfer:
				return t.GetOwnerAccount().PublicKey.String(), nil
			case *token.TransferChecked:
				return t.GetOwnerAccount().PublicKey.String(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: no transfer instruction found", gate.ErrInvalidAuthorization)
}
