// Package platform provides cross-platform filesystem operations used when
// unpacking release archives: permission bits, symlink entries, and
// confinement of archive paths to their destination directory. On Windows,
// permission changes are no-ops and symlinks fall back to file copies.
package platform
