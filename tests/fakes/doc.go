// Package fakes provides test doubles for vault-loader interfaces.
//
// Fakes are hand-written (not generated) so tests control exactly how the
// secret store behaves: which secrets exist, how many reads fail first and
// how long each request takes.
//
// Usage:
//
//	fake := fakes.NewFakeVault().
//	    WithSecret("secret/data/web3signer/pk1/vkey", map[string]interface{}{
//	        "raw_unencrypted_key": "0xaa",
//	    }).
//	    WithFailures("secret/data/web3signer/pk1/vkey", 2, errors.New("connection reset"))
//	fetcher := fetch.New(fake, requests, fetch.WithKVPath("secret/data/web3signer"))
package fakes
