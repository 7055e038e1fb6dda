// Package security provides the cryptographic primitives of the trust core:
// canonical HMAC-SHA256 signing of session records, AES-256-GCM encryption
// for records at rest (scrypt key derivation), and the device fingerprint
// generator that binds a license to an installation.
//
// None of this protects against an attacker who fully reverse-engineers the
// installed binary; the client-held secrets are inherently exposed. The goal
// is to make casual editing of local records detectable and to keep the
// strong/degraded crypto paths explicitly separate.
package security
