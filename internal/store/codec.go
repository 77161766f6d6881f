// SPDX-License-Identifier: MIT

package store

import "bytes"

// EncodeArgv joins argv into the NUL-delimited on-disk command blob format
// (spec.md §3, §4.2). Every byte except NUL is permitted in an argument.
func EncodeArgv(argv []string) []byte {
	if len(argv) == 0 {
		return nil
	}
	return bytes.Join(toByteSlices(argv), []byte{0})
}

// DecodeArgv splits a NUL-delimited command blob back into argv. An empty
// blob decodes to an empty (nil) argv, matching the Executor's "no-op: a
// smart skip raced in" case (spec.md §4.5 step 2).
func DecodeArgv(blob []byte) []string {
	if len(blob) == 0 {
		return nil
	}
	parts := bytes.Split(blob, []byte{0})
	argv := make([]string, len(parts))
	for i, p := range parts {
		argv[i] = string(p)
	}
	return argv
}

func toByteSlices(argv []string) [][]byte {
	out := make([][]byte, len(argv))
	for i, a := range argv {
		out[i] = []byte(a)
	}
	return out
}
