package flat

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

var indexMagic = [8]byte{'R', 'S', 'A', 'F', 'L', 'A', 'T', '1'}

// magic, uint32 dimension, uint64 count
const vectorHeaderSize = 8 + 4 + 8

type snapshot struct {
	dimension int
	vectors   [][]float32
	records   []domain.Fragment
}

// fileStore keeps the vector file and the metadata file side by side.
type fileStore struct {
	indexPath    string
	metadataPath string
}

// load returns nil, nil when neither file exists.
func (s fileStore) load() (*snapshot, error) {
	indexExists, err := exists(s.indexPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index", err)
	}
	metaExists, err := exists(s.metadataPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index", err)
	}
	switch {
	case !indexExists && !metaExists:
		return nil, nil
	case !indexExists:
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index", fmt.Errorf("index file %s missing", s.indexPath))
	case !metaExists:
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index", fmt.Errorf("metadata file %s missing", s.metadataPath))
	}

	dimension, vectors, err := readVectors(s.indexPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "read vectors", err)
	}
	records, err := readRecords(s.metadataPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "read metadata", err)
	}
	if len(vectors) != len(records) {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index",
			fmt.Errorf("vector count %d does not match metadata count %d", len(vectors), len(records)))
	}
	for i, rec := range records {
		if rec.Handle != i {
			return nil, domain.WrapError(domain.ErrIndexCorrupt, "load index",
				fmt.Errorf("metadata record %d carries handle %d", i, rec.Handle))
		}
	}
	return &snapshot{dimension: dimension, vectors: vectors, records: records}, nil
}

// save writes both files to temporaries and renames them into place.
func (s fileStore) save(dimension int, vectors [][]float32, records []domain.Fragment) error {
	indexTmp, err := writeTemp(s.indexPath, func(w io.Writer) error {
		return writeVectors(w, dimension, vectors)
	})
	if err != nil {
		return err
	}
	metaTmp, err := writeTemp(s.metadataPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	})
	if err != nil {
		_ = os.Remove(indexTmp)
		return err
	}
	if err := os.Rename(indexTmp, s.indexPath); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	if err := os.Rename(metaTmp, s.metadataPath); err != nil {
		_ = os.Remove(metaTmp)
		return fmt.Errorf("rename metadata file: %w", err)
	}
	return nil
}

// quarantine renames whichever files exist to a timestamped .corrupt name.
func (s fileStore) quarantine() ([]string, error) {
	suffix := ".corrupt-" + time.Now().UTC().Format("20060102T150405")
	var moved []string
	var errs []error
	for _, path := range []string{s.indexPath, s.metadataPath} {
		ok, err := exists(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		target := path + suffix
		if err := os.Rename(path, target); err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, target)
	}
	return moved, errors.Join(errs...)
}

func writeTemp(path string, write func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return tmp, nil
}

func writeVectors(w io.Writer, dimension int, vectors [][]float32) error {
	if _, err := w.Write(indexMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(vectors))); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func readVectors(path string) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}
	if magic != indexMagic {
		return 0, nil, errors.New("unrecognized index file header")
	}
	var dimension uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return 0, nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, nil, fmt.Errorf("read count: %w", err)
	}
	if count > 0 && dimension == 0 {
		return 0, nil, errors.New("non-empty index with zero dimension")
	}
	if err := checkVectorFileSize(f, dimension, count); err != nil {
		return 0, nil, err
	}

	vectors := make([][]float32, 0, min(count, 1<<20))
	buf := make([]byte, 4)
	for i := uint64(0); i < count; i++ {
		vec := make([]float32, dimension)
		for j := range vec {
			if _, err := io.ReadFull(r, buf); err != nil {
				return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
			}
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		vectors = append(vectors, vec)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return 0, nil, errors.New("trailing bytes after last vector")
	}
	return int(dimension), vectors, nil
}

// checkVectorFileSize rejects headers whose dimension and count do not
// describe the file's actual length, before anything is allocated.
func checkVectorFileSize(f *os.File, dimension uint32, count uint64) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	size := info.Size()
	if size < vectorHeaderSize {
		return fmt.Errorf("index file is %d bytes, shorter than its header", size)
	}
	rowBytes := uint64(dimension) * 4
	payload := uint64(size - vectorHeaderSize)
	if rowBytes == 0 {
		if payload != 0 {
			return fmt.Errorf("index file has %d payload bytes for zero-dimension vectors", payload)
		}
		return nil
	}
	if count > payload/rowBytes || count*rowBytes != payload {
		return fmt.Errorf("index header declares %d vectors of dimension %d, file holds %d payload bytes", count, dimension, payload)
	}
	return nil
}

func readRecords(path string) ([]domain.Fragment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.Fragment
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return records, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
