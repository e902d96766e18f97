// Package frame provides the wire format shared with the WiFi co-processor.
package frame

// Every message is laid out as
//
//   intron[6] type[1] variable_byte[1] size[2, BE] payload[size] crc32[4, BE]
//
// The CRC32 (IEEE) covers intron, header and payload. The intron is the
// resynchronization anchor in the receive stream: its first two bytes are
// fixed, the remaining four are re-randomized by the host on every AP join
// and sent to the co-processor inside the client config message.
