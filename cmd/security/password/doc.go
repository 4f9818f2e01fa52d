// Package password hashes and verifies user passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
//
// Salt and key are unpadded standard base64.
package password
