package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
)

const formatVersion = 1

var magic = [4]byte{'V', 'I', 'D', 'X'}

// fileHeader: заголовок файла векторов. Дальше идут count*dim float32 в little-endian.
type fileHeader struct {
	Magic     [4]byte
	Version   uint32
	Dim       uint32
	Count     uint32
	CreatedAt int64
}

// metadataRow: строка <seller>_products.json; i-я строка соответствует i-му вектору.
// IndexCreatedAt совпадает с CreatedAt из заголовка файла векторов той же сборки.
type metadataRow struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	Price          float64 `json:"price"`
	IndexCreatedAt int64   `json:"index_created_at"`
}

func encodeVectors(w io.Writer, idx *domain.SellerIndex, dim int) error {
	bw := bufio.NewWriter(w)

	header := fileHeader{
		Magic:     magic,
		Version:   formatVersion,
		Dim:       uint32(dim),
		Count:     uint32(len(idx.Records)),
		CreatedAt: idx.CreatedAt.UnixNano(),
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}

	for _, r := range idx.Records {
		if err := binary.Write(bw, binary.LittleEndian, r.Vector); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// decodeVectors читает файл векторов. Любое расхождение формата считается повреждением индекса.
func decodeVectors(r io.Reader, wantDim int) ([][]float32, time.Time, error) {
	br := bufio.NewReader(r)

	var header fileHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: read header: %v", e.ErrIndexCorrupt, err)
	}
	if header.Magic != magic {
		return nil, time.Time{}, fmt.Errorf("%w: bad magic %q", e.ErrIndexCorrupt, header.Magic[:])
	}
	if header.Version != formatVersion {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported version %d", e.ErrIndexCorrupt, header.Version)
	}
	if int(header.Dim) != wantDim {
		return nil, time.Time{}, fmt.Errorf("%w: %w: file dim %d, configured %d",
			e.ErrIndexCorrupt, e.ErrDimensionMismatch, header.Dim, wantDim)
	}

	vectors := make([][]float32, header.Count)
	for i := range vectors {
		v := make([]float32, header.Dim)
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: vector %d of %d: %v", e.ErrIndexCorrupt, i, header.Count, err)
		}
		vectors[i] = v
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, time.Time{}, fmt.Errorf("%w: trailing data after %d vectors", e.ErrIndexCorrupt, header.Count)
	}

	return vectors, time.Unix(0, header.CreatedAt).UTC(), nil
}

func encodeMetadata(w io.Writer, idx *domain.SellerIndex) error {
	rows := make([]metadataRow, len(idx.Records))
	for i, r := range idx.Records {
		rows[i] = metadataRow{
			ProductID:      r.ProductID,
			ProductName:    r.ProductName,
			Price:          r.Price,
			IndexCreatedAt: idx.CreatedAt.UnixNano(),
		}
	}

	return json.NewEncoder(w).Encode(rows)
}

func decodeMetadata(r io.Reader) ([]metadataRow, error) {
	var rows []metadataRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", e.ErrIndexCorrupt, err)
	}
	return rows, nil
}
