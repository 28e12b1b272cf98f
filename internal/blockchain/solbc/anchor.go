package solbc

import (
	"crypto/sha256"
)

// AnchorDiscriminator calculates an Anchor discriminator for "<namespace>:<name>".
func AnchorDiscriminator(namespace, name string) []byte {
	hash := sha256.Sum256([]byte(namespace + ":" + name))
	return hash[:8]
}

// AnchorInstructionDiscriminator returns the 8-byte prefix Anchor expects in
// instruction data for the given snake_case method name.
func AnchorInstructionDiscriminator(method string) []byte {
	return AnchorDiscriminator("global", method)
}
