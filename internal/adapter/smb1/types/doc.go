// Package types defines SMB1 (CIFS, NT LM 0.12) wire constants: command
// opcodes, header flags, NT status codes, DOS error class/code pairs, file
// attributes, and time encodings.
package types
