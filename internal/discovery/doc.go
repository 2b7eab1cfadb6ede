// Package discovery locates the daemon executable and checks its version.
//
// A name containing a path separator is used as given. A bare name is looked
// up in PATH and then in a few common install directories.
package discovery
