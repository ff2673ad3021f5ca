package processor

import (
	"io"

	"github.com/golang/snappy"
)

// CompressPayload сжимает небольшой блок данных целиком (формат блока Snappy)
func CompressPayload(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressPayload распаковывает блок, сжатый CompressPayload
func DecompressPayload(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	return decompressed, nil
}

// newStreamWriter оборачивает w потоковым (framed) сжатием Snappy; Close сбрасывает буфер
func newStreamWriter(w io.Writer) *snappy.Writer {
	return snappy.NewBufferedWriter(w)
}

// newStreamReader распаковывает поток, записанный newStreamWriter
func newStreamReader(r io.Reader) *snappy.Reader {
	return snappy.NewReader(r)
}
