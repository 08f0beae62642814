// Package integrity signs and verifies the chain hashes that link journal
// events, so a log copied between machines can be checked for tampering.
package integrity
