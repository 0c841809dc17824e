package store

// marshalData stores int8 memory as a BLOB of two's complement bytes.
func marshalData(data []int8) []byte {
	b := make([]byte, len(data))
	for i, v := range data {
		b[i] = byte(v)
	}
	return b
}

// unmarshalData is the inverse of marshalData.
func unmarshalData(b []byte) []int8 {
	data := make([]int8, len(b))
	for i, v := range b {
		data[i] = int8(v)
	}
	return data
}
