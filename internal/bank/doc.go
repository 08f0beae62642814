// Package bank is a small banking domain built on the memory image: accounts
// with validated balances, and the mutations and queries that move money
// between them.
package bank
