// Package utils provides small shared helpers, currently glob matching of
// transport names.
package utils
