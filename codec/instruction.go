package codec

import "encoding/binary"

// EncodeSubmitHours packs the release-authorization payload: selector tag
// followed by the worked hours as a single byte.
func EncodeSubmitHours(tag Tag, hours uint8) []byte {
	data := make([]byte, 0, TagLength+1)
	data = append(data, tag[:]...)
	return append(data, hours)
}

// EncodeWithdraw packs the withdrawal payload: selector tag followed by the
// amount in base units, little-endian.
func EncodeWithdraw(tag Tag, amount uint64) []byte {
	data := make([]byte, TagLength+8)
	copy(data, tag[:])
	binary.LittleEndian.PutUint64(data[TagLength:], amount)
	return data
}
