// Package cli implements the dbnest command line interface: up, down,
// status and version. Parsing is done with kong; the commands are thin
// wrappers over the root dbnest package.
package cli
