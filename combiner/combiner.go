// Package combiner merges the shared secrets of the two component KEMs into
// the hybrid shared secret, and binds the component public keys together.
package combiner

import (
	"github.com/pkg/errors"

	qhybrid "github.com/BackendStack21/qhybrid-go"
	"github.com/BackendStack21/qhybrid-go/utils"
)

const (
	DomainBind    = "qhybrid-bind-v1"
	DomainCombine = "qhybrid-combine-v1"

	// BindingSize is the length of the public-key binding hash.
	BindingSize = 32
)

// Binding computes the hash that ties the two component public keys into one
// hybrid key. Each key is hashed under its own domain first.
func Binding(pkA, pkB []byte) []byte {
	aHash := utils.Hash(DomainBind+"-a", pkA)
	bHash := utils.Hash(DomainBind+"-b", pkB)
	return utils.Hash(DomainBind+"-final", aHash, bHash)
}

// Combine derives the hybrid shared secret from both component secrets, both
// component ciphertexts and the public-key binding.
//
// As long as one of ssA, ssB is unknown to an attacker the output is
// pseudorandom. Hashing the ciphertexts makes any change to either half of a
// hybrid ciphertext change the secret, even if a component would map it to
// the same component secret.
func Combine(ssA, ssB, ctA, ctB, binding []byte) (qhybrid.SharedSecret, error) {
	var out qhybrid.SharedSecret
	if len(ssA) == 0 || len(ssB) == 0 {
		return out, errors.New("combiner: component secrets must not be empty")
	}
	if len(binding) != BindingSize {
		return out, errors.Errorf("combiner: binding must be %d bytes, got %d", BindingSize, len(binding))
	}
	copy(out[:], utils.Hash(DomainCombine, ssA, ssB, ctA, ctB, binding))
	return out, nil
}
