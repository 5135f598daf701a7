package udpstream

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// crc16Checksum computes the CRC-16/CCITT-FALSE over data, appended as a
// trailing 2 bytes on every UDP fragment (this port's resolution of the
// spec's UDP fragmentation-header Open Question: integrity is made
// explicit rather than left implementation-defined).
func crc16Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
