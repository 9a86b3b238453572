// Package filesystem implements the storage the slot transitions act on.
//
// OS writes through to the real filesystem: replacements are staged next to
// the destination, checksum-verified and renamed into place with go-update,
// and transitions are serialized with flock(2). Memory keeps the same
// contract on an in-memory afero filesystem and backs dry runs and tests.
package filesystem
