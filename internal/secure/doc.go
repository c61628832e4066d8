// Package secure keeps credentials such as the Vault token out of ordinary
// Go memory.
//
// Values are held in memguard enclaves: encrypted at rest in memory, locked
// against swapping where the platform allows it, and wiped once released.
// Callers open a buffer only for as long as they need the plaintext:
//
//	tok, err := secure.ReadToken("/run/secrets/vault-token")
//	if err != nil {
//	    return err
//	}
//	defer tok.Destroy()
//
//	locked, err := tok.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	client.SetToken(string(locked.Bytes()))
//
// This does not protect against an attacker with access to the running
// process, nor against copies made by libraries the plaintext is handed to.
package secure
