package keystore

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// KeyType is the only key type the loader emits.
const KeyType = "BLS"

// Web3signer key configuration types.
const (
	TypeFileRaw      = "file-raw"
	TypeFileKeystore = "file-keystore"
)

// Output file extensions.
const (
	ExtConfig   = ".yaml"
	ExtKeystore = ".json"
	ExtPassword = ".password"
)

// FileMode is applied to every file the loader writes.
const FileMode os.FileMode = 0o600

var pubkeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidatePubkey rejects identifiers that cannot be used as a single path
// segment.
func ValidatePubkey(pubkey string) error {
	if !pubkeyPattern.MatchString(pubkey) {
		return fmt.Errorf("invalid public key %q: must match %s", pubkey, pubkeyPattern.String())
	}
	return nil
}

// FileName returns the output file name for pubkey with the given extension.
func FileName(pubkey, ext string) string {
	return "keystore-" + pubkey + ext
}

// File is one file of an Artifact, named relative to the output directory.
type File struct {
	Name    string
	Content []byte
	Mode    os.FileMode
}

// Artifact is the set of files web3signer needs for one key. The YAML
// configuration always comes first.
type Artifact struct {
	Pubkey string
	Files  []File
}

type rawConfig struct {
	Type       string `yaml:"type"`
	KeyType    string `yaml:"keyType"`
	PrivateKey string `yaml:"privateKey"`
}

type keystoreConfig struct {
	Type                 string `yaml:"type"`
	KeyType              string `yaml:"keyType"`
	KeystoreFile         string `yaml:"keystoreFile"`
	KeystorePasswordFile string `yaml:"keystorePasswordFile"`
}

// Resolve builds the files for k. The same key always yields the same bytes.
func Resolve(k Key) (*Artifact, error) {
	if k == nil {
		return nil, fmt.Errorf("cannot resolve nil key")
	}
	if err := ValidatePubkey(k.Identifier()); err != nil {
		return nil, err
	}

	switch key := k.(type) {
	case RawKey:
		return resolveRaw(key)
	case EncryptedKey:
		return resolveEncrypted(key)
	default:
		return nil, fmt.Errorf("unsupported key type %T", k)
	}
}

func resolveRaw(key RawKey) (*Artifact, error) {
	doc, err := yaml.Marshal(rawConfig{
		Type:       TypeFileRaw,
		KeyType:    KeyType,
		PrivateKey: key.PrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode key config for %s: %w", key.Pubkey, err)
	}

	return &Artifact{
		Pubkey: key.Pubkey,
		Files: []File{
			{Name: FileName(key.Pubkey, ExtConfig), Content: doc, Mode: FileMode},
		},
	}, nil
}

func resolveEncrypted(key EncryptedKey) (*Artifact, error) {
	keystoreName := FileName(key.Pubkey, ExtKeystore)
	passwordName := FileName(key.Pubkey, ExtPassword)

	doc, err := yaml.Marshal(keystoreConfig{
		Type:                 TypeFileKeystore,
		KeyType:              KeyType,
		KeystoreFile:         keystoreName,
		KeystorePasswordFile: passwordName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode key config for %s: %w", key.Pubkey, err)
	}

	return &Artifact{
		Pubkey: key.Pubkey,
		Files: []File{
			{Name: FileName(key.Pubkey, ExtConfig), Content: doc, Mode: FileMode},
			{Name: keystoreName, Content: key.Keystore, Mode: FileMode},
			{Name: passwordName, Content: []byte(key.Password), Mode: FileMode},
		},
	}, nil
}
