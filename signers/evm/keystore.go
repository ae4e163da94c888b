package evm

import (
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	gate "github.com/mark3labs/x402-gate"
)

// WithKeystore configures the signer from an encrypted geth keystore file.
func WithKeystore(path, password string) SignerOption {
	return func(s *Signer) {
		data, err := os.ReadFile(path)
		if err != nil {
			s.setErr(gate.ErrInvalidKeystore)
			return
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			s.setErr(gate.ErrInvalidKeystore)
			return
		}
		s.privateKey = key.PrivateKey
	}
}

// WithMnemonic derives the signer's key from a BIP-39 mnemonic at the
// standard Ethereum path m/44'/60'/0'/0/accountIndex.
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return func(s *Signer) {
		if !bip39.IsMnemonicValid(mnemonic) {
			s.setErr(gate.ErrInvalidMnemonic)
			return
		}

		seed := bip39.NewSeed(mnemonic, "")
		master, err := bip32.NewMasterKey(seed)
		if err != nil {
			s.setErr(gate.ErrInvalidMnemonic)
			return
		}

		path := []uint32{
			bip32.FirstHardenedChild + 44,
			bip32.FirstHardenedChild + 60,
			bip32.FirstHardenedChild,
			0,
			accountIndex,
		}
		key := master
		for _, segment := range path {
			key, err = key.NewChildKey(segment)
			if err != nil {
				s.setErr(gate.ErrInvalidMnemonic)
				return
			}
		}

		privateKey, err := crypto.ToECDSA(key.Key)
		if err != nil {
			s.setErr(gate.ErrInvalidMnemonic)
			return
		}
		s.privateKey = privateKey
	}
}
