// Package qhybrid implements a hybrid post-quantum key encapsulation mechanism.
// A lattice-style component (matrix LWE) and a code-based component (McEliece
// over binary Goppa codes) are run side by side and their shared secrets are
// combined, so an attacker has to break both to learn the session key.
//
// WARNING: The parameter sets shipped here are not standardized. Swap in a
// certified component (see the schemes/ packages) before protecting real data.
package qhybrid

// Version of the qHybrid Go implementation.
const Version = "0.4.0"

// API summary:
//
// Key Encapsulation (KEM):
//   - kem.New(level) - Build a hybrid KEM for the given security level
//   - (*kem.KEM).KeyPair() - Generate a hybrid key pair
//   - (*kem.KEM).Encapsulate(pk) - Generate ciphertext and shared secret
//   - (*kem.KEM).Decapsulate(ct, sk) - Recover the shared secret
//   - kem.DeriveKeys(ss, n) - Expand a shared secret into n keys
//   - (*kem.KEM).Seal / Open - Encrypt a message under a public key
//
// Building blocks:
//   - entropy.Default() - Process-wide entropy source
//   - kdf.DeriveKeys(secret, n, opts...) - HKDF-SHA3 key expansion
//   - combiner.Combine(...) - Hybrid secret combiner
//   - core.GetParams(level) - Parameter sets
