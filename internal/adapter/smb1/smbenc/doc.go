// Package smbenc provides little-endian encoding and decoding for the SMB1
// parameter-word and byte blocks.
//
// Reader and Writer accumulate the first error, so callers decode a whole
// block and check once:
//
//	r := smbenc.NewReader(words)
//	fid := r.ReadUint16()
//	offset := r.ReadUint32()
//	if r.Err() != nil {
//	    return r.Err()
//	}
//
// SMB1 aligns UTF-16 strings to an even offset from the start of the SMB
// header, not from the start of the block, so both types carry the block's
// base offset within the message.
package smbenc
