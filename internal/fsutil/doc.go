// Package fsutil provides filesystem primitives the shared cache relies on:
// a rename that refuses to replace an existing destination and
// classification of hard-link failures.
package fsutil
