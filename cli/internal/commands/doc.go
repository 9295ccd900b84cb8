// Package commands implements the dsactl command tree.
//
// Every command runs against one store: etcd, dialed from the file named by
// --etcd-config, or a throwaway in-memory store with --memory. Tests inject
// a store through Options and read the output from Options.Out.
package commands
