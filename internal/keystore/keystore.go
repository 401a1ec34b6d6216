// Package keystore owns the encrypted wallet entries. Secrets are
// encrypted with go-ethereum's keystore format (scrypt-derived key,
// AES cipher, MAC over the ciphertext), so the KDF parameters travel
// with each entry and tampering surfaces as a decrypt failure.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	bip39 "github.com/tyler-smith/go-bip39"

	clierr "github.com/ggonzalez94/custody-cli/internal/errors"
)

const entryVersion = 1

var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// Wallet is the public, decryption-free view of a keystore entry.
type Wallet struct {
	Label     string `json:"label"`
	Address   string `json:"address"`
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
}

type entry struct {
	Label     string          `json:"label"`
	Address   string          `json:"address"`
	Version   int             `json:"version"`
	CreatedAt string          `json:"created_at"`
	Keystore  json.RawMessage `json:"keystore"`
}

// Store is a label-indexed directory of encrypted wallet entries.
// Mutations take a file lock (single writer); reads do not.
type Store struct {
	dir     string
	lock    *flock.Flock
	scryptN int
	scryptP int
	now     func() time.Time
}

// Open opens (or creates) the keystore directory. The scrypt parameters
// control the KDF cost for new and re-encrypted entries; use
// gethkeystore.StandardScryptN/P outside tests.
func Open(dir string, scryptN, scryptP int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create keystore directory", err)
	}
	return &Store{
		dir:     dir,
		lock:    flock.New(filepath.Join(dir, "keystore.lock")),
		scryptN: scryptN,
		scryptP: scryptP,
		now:     time.Now,
	}, nil
}

// Create generates a fresh key and stores it encrypted under label.
func (s *Store) Create(label, password string) (Wallet, error) {
	if err := validateLabel(label); err != nil {
		return Wallet{}, err
	}
	if err := validatePassword(password); err != nil {
		return Wallet{}, err
	}
	pk, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, clierr.Wrap(clierr.CodeInternal, "generate key", err)
	}
	defer zeroKey(pk)
	return s.save(label, password, pk, false)
}

// Import stores an existing secret under label. The secret is either a
// hex-encoded private key or a BIP-39 mnemonic; anything else fails
// validation before touching disk.
func (s *Store) Import(label, secret, password string) (Wallet, error) {
	if err := validateLabel(label); err != nil {
		return Wallet{}, err
	}
	if err := validatePassword(password); err != nil {
		return Wallet{}, err
	}
	pk, err := parseSecret(secret)
	if err != nil {
		return Wallet{}, err
	}
	defer zeroKey(pk)
	return s.save(label, password, pk, false)
}

// Unlock decrypts the wallet's key and hands it to fn inside a bounded
// scope. The decrypted material is wiped when fn returns, on every exit
// path including panics.
func (s *Store) Unlock(label, password string, fn func(*UnlockedKey) error) error {
	ent, err := s.read(label)
	if err != nil {
		return err
	}
	key, err := gethkeystore.DecryptKey(ent.Keystore, password)
	if err != nil {
		if errors.Is(err, gethkeystore.ErrDecrypt) {
			return clierr.New(clierr.CodeAuth, fmt.Sprintf("wrong password or corrupt keystore entry for wallet %q", label))
		}
		return clierr.Wrap(clierr.CodeAuth, "decrypt wallet", err)
	}
	unlocked := newUnlockedKey(key.PrivateKey, ent.Address)
	defer unlocked.wipe()
	return fn(unlocked)
}

// List returns all wallets without decrypting anything, sorted by label.
func (s *Store) List() ([]Wallet, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "read keystore directory", err)
	}
	wallets := make([]Wallet, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		ent, err := s.read(strings.TrimSuffix(de.Name(), ".json"))
		if err != nil {
			continue
		}
		wallets = append(wallets, ent.wallet())
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Label < wallets[j].Label })
	return wallets, nil
}

// Get returns the decryption-free view of one wallet.
func (s *Store) Get(label string) (Wallet, error) {
	ent, err := s.read(label)
	if err != nil {
		return Wallet{}, err
	}
	return ent.wallet(), nil
}

// Delete removes a wallet entry.
func (s *Store) Delete(label string) error {
	if err := validateLabel(label); err != nil {
		return err
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	path := s.entryPath(label)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return clierr.New(clierr.CodeNotFound, fmt.Sprintf("wallet not found: %s", label))
		}
		return clierr.Wrap(clierr.CodeInternal, "stat wallet entry", err)
	}
	if err := os.Remove(path); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "delete wallet entry", err)
	}
	return nil
}

// ChangePassword re-encrypts the entry under a new password. The address
// and label are unchanged; only the ciphertext is rewritten.
func (s *Store) ChangePassword(label, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	return s.Unlock(label, oldPassword, func(k *UnlockedKey) error {
		_, err := s.save(label, newPassword, k.priv, true)
		return err
	})
}

func (s *Store) save(label, password string, pk *ecdsa.PrivateKey, overwrite bool) (Wallet, error) {
	if err := s.acquireLock(); err != nil {
		return Wallet{}, err
	}
	defer func() { _ = s.lock.Unlock() }()

	path := s.entryPath(label)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return Wallet{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("wallet label already exists: %s", label))
		}
	}

	address := crypto.PubkeyToAddress(pk.PublicKey)
	key := &gethkeystore.Key{
		Id:         uuid.New(),
		Address:    address,
		PrivateKey: pk,
	}
	blob, err := gethkeystore.EncryptKey(key, password, s.scryptN, s.scryptP)
	if err != nil {
		return Wallet{}, clierr.Wrap(clierr.CodeInternal, "encrypt wallet key", err)
	}

	ent := entry{
		Label:     label,
		Address:   address.Hex(),
		Version:   entryVersion,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
		Keystore:  blob,
	}
	if overwrite {
		if prev, err := s.read(label); err == nil {
			ent.CreatedAt = prev.CreatedAt
		}
	}
	buf, err := json.MarshalIndent(ent, "", "  ")
	if err != nil {
		return Wallet{}, clierr.Wrap(clierr.CodeInternal, "encode wallet entry", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return Wallet{}, clierr.Wrap(clierr.CodeInternal, "write wallet entry", err)
	}
	return ent.wallet(), nil
}

func (s *Store) read(label string) (entry, error) {
	if err := validateLabel(label); err != nil {
		return entry{}, err
	}
	buf, err := os.ReadFile(s.entryPath(label))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entry{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("wallet not found: %s", label))
		}
		return entry{}, clierr.Wrap(clierr.CodeInternal, "read wallet entry", err)
	}
	var ent entry
	if err := json.Unmarshal(buf, &ent); err != nil {
		return entry{}, clierr.Wrap(clierr.CodeInternal, "decode wallet entry", err)
	}
	return ent, nil
}

func (s *Store) acquireLock() error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "lock keystore", err)
	}
	if !locked {
		return clierr.New(clierr.CodeInternal, "lock keystore: timeout acquiring lock")
	}
	return nil
}

func (s *Store) entryPath(label string) string {
	return filepath.Join(s.dir, label+".json")
}

func (e entry) wallet() Wallet {
	return Wallet{Label: e.Label, Address: e.Address, Version: e.Version, CreatedAt: e.CreatedAt}
}

func parseSecret(secret string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(secret)
	if clean == "" {
		return nil, clierr.New(clierr.CodeValidation, "secret is required")
	}
	hexCandidate := strings.TrimPrefix(clean, "0x")
	if len(hexCandidate) == 64 && !strings.Contains(hexCandidate, " ") {
		pk, err := crypto.HexToECDSA(hexCandidate)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeValidation, "invalid private key", err)
		}
		return pk, nil
	}
	words := strings.Fields(strings.ToLower(clean))
	if len(words) >= 12 {
		mnemonic := strings.Join(words, " ")
		if !bip39.IsMnemonicValid(mnemonic) {
			return nil, clierr.New(clierr.CodeValidation, "invalid seed phrase: checksum or word list mismatch")
		}
		seed := bip39.NewSeed(mnemonic, "")
		defer zeroBytes(seed)
		return keyFromSeed(seed)
	}
	return nil, clierr.New(clierr.CodeValidation, "secret must be a 32-byte hex key or a BIP-39 mnemonic")
}

// keyFromSeed hashes the seed until the digest is a valid curve scalar.
// The first digest is accepted in all but astronomically rare cases.
func keyFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	candidate := crypto.Keccak256(seed)
	for i := 0; i < 8; i++ {
		pk, err := crypto.ToECDSA(candidate)
		if err == nil {
			zeroBytes(candidate)
			return pk, nil
		}
		candidate = crypto.Keccak256(candidate)
	}
	return nil, clierr.New(clierr.CodeInternal, "seed does not derive a valid key")
}

func validateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid wallet label: %q", label))
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return clierr.New(clierr.CodeValidation, "password must be at least 6 characters")
	}
	return nil
}
