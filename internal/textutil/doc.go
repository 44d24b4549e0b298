// Package textutil turns user-supplied names into path components and
// display strings.
package textutil
