// Package transfer moves READ payloads from files to the wire and applies
// WRITE payloads to files.
//
// The read path commits the response header before the payload. Once the
// header is on the wire the promised byte count must be delivered, so every
// fallback continues from the current position and any bytes the file can
// no longer supply are sent as zeros.
package transfer
