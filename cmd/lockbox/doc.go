// Package main provides the entry point for lockbox.
//
// lockbox manages an encrypted, versioned key-value store on the local
// machine:
//
//	lockbox init
//	lockbox set settings '{"theme":"dark"}'
//	lockbox get settings -o yaml
//	lockbox backup create before-upgrade
//	lockbox backup restore before-upgrade --yes
package main
