// Package updater keeps an installation directory in step with a remote
// release feed. A Controller runs update cycles: fetch the latest release
// metadata, compare its tag with the installed version, download and verify
// the artifact, then unpack it into a staging directory and swap it into
// place. Every cycle ends in one of four outcomes and never panics out.
//
// The package also replaces the running neu binary itself (SelfUpdate) and
// persists the installed version and the last cycle's status in a state
// directory.
package updater
