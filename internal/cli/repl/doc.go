// Package repl implements the interactive shell behind "lockbox shell".
//
// Each input line is split into arguments with shell-style quoting and
// handed to an Exec function, normally a fresh run of the CLI app. Three
// words are handled by the shell itself: help lists commands, history
// prints the lines entered so far, and exit or quit leaves. History is kept
// in memory only, since lines may carry secret values.
package repl
