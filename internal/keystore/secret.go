// Package keystore turns Vault secrets into web3signer key configurations.
//
// Decode validates one secret and picks the key format it carries; Resolve
// maps the decoded key to the files web3signer expects on disk. Both are
// pure functions.
package keystore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	dserrors "github.com/systmms/vault-loader/internal/errors"
	"github.com/systmms/vault-loader/internal/logging"
)

// Secret fields as stored in Vault.
const (
	FieldRawUnencryptedKey = "raw_unencrypted_key"
	FieldPassword          = "password"
	FieldPBKDF2Key         = "pbkdf2_key"
	FieldScryptKey         = "scrypt_key"
	FieldDefaultKey        = "vkey"
	FieldRealm             = "realm"
)

// EncryptedFields lists the keystore fields in precedence order.
var EncryptedFields = []string{FieldPBKDF2Key, FieldScryptKey, FieldDefaultKey}

// Key is a decoded secret. The set of implementations is closed: RawKey and
// EncryptedKey.
type Key interface {
	Identifier() string
	isKey()
}

// RawKey carries an unencrypted private key.
type RawKey struct {
	Pubkey     string
	PrivateKey string
	Realm      string
}

// EncryptedKey carries an EIP-2335 keystore document and its password.
type EncryptedKey struct {
	Pubkey   string
	Password string
	// Keystore is the decoded JSON document.
	Keystore []byte
	// Source is the secret field the keystore was taken from.
	Source string
	Realm  string
}

func (k RawKey) Identifier() string       { return k.Pubkey }
func (k EncryptedKey) Identifier() string { return k.Pubkey }

func (RawKey) isKey()       {}
func (EncryptedKey) isKey() {}

// String keeps the private key out of log lines and error messages.
func (k RawKey) String() string {
	return fmt.Sprintf("RawKey{Pubkey:%s PrivateKey:%s Realm:%s}", k.Pubkey, logging.Secret(k.PrivateKey), k.Realm)
}

func (k RawKey) GoString() string { return k.String() }

// String keeps the password and keystore document out of log lines and
// error messages.
func (k EncryptedKey) String() string {
	return fmt.Sprintf("EncryptedKey{Pubkey:%s Source:%s Password:%s Keystore:%s Realm:%s}",
		k.Pubkey, k.Source, logging.Secret(k.Password), logging.Secret(k.Keystore), k.Realm)
}

func (k EncryptedKey) GoString() string { return k.String() }

// Decode validates a secret read for pubkey and returns the key it carries.
//
// A raw_unencrypted_key wins over everything else in the secret. Otherwise
// a password and at least one keystore field are required; the keystore is
// taken from pbkdf2_key, then scrypt_key, then vkey. Every keystore field
// present must be base64-encoded JSON. All failures wrap ErrInvalidSecret.
func Decode(pubkey string, raw map[string]interface{}) (Key, error) {
	if raw == nil {
		return nil, invalid(pubkey, "empty secret")
	}

	privateKey, ok, err := stringField(raw, FieldRawUnencryptedKey)
	if err != nil {
		return nil, invalid(pubkey, err.Error())
	}
	realm := realmField(raw)
	if ok {
		return RawKey{Pubkey: pubkey, PrivateKey: privateKey, Realm: realm}, nil
	}

	password, hasPassword, err := stringField(raw, FieldPassword)
	if err != nil {
		return nil, invalid(pubkey, err.Error())
	}

	var (
		keystore []byte
		source   string
	)
	for _, field := range EncryptedFields {
		value, ok, err := stringField(raw, field)
		if err != nil {
			return nil, invalid(pubkey, err.Error())
		}
		if !ok {
			continue
		}

		doc, err := decodeKeystore(value)
		if err != nil {
			return nil, invalid(pubkey, fmt.Sprintf("field %q: %v", field, err))
		}
		if keystore == nil {
			keystore, source = doc, field
		}
	}

	switch {
	case keystore == nil && !hasPassword:
		return nil, invalid(pubkey, fmt.Sprintf("no %s and no password with keystore", FieldRawUnencryptedKey))
	case keystore == nil:
		return nil, invalid(pubkey, fmt.Sprintf("password present but none of %s", strings.Join(EncryptedFields, ", ")))
	case !hasPassword:
		return nil, invalid(pubkey, fmt.Sprintf("keystore in %q has no password", source))
	}

	return EncryptedKey{
		Pubkey:   pubkey,
		Password: password,
		Keystore: keystore,
		Source:   source,
		Realm:    realm,
	}, nil
}

func invalid(pubkey, reason string) error {
	return fmt.Errorf("%w for %s: %s", dserrors.ErrInvalidSecret, pubkey, reason)
}

// stringField reports a field's value and whether it is set. Missing, null
// and empty values count as unset; anything other than a string is an error.
func stringField(raw map[string]interface{}, name string) (string, bool, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return "", false, nil
	}

	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("field %q is %T, want string", name, v)
	}

	return s, s != "", nil
}

// realmField is informational only and never fails a decode.
func realmField(raw map[string]interface{}) string {
	realm, _ := raw[FieldRealm].(string)
	return realm
}

func decodeKeystore(value string) ([]byte, error) {
	doc, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("decoded value is not JSON")
	}
	return doc, nil
}
