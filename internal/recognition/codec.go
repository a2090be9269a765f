package recognition

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

const galleryCodecVersion byte = 1

var errCorruptGallery = errors.New("corrupt gallery encoding")

// encodeGallery packs signatures little-endian: a version byte and a count,
// then per signature the two ids, created_at in unix nanos, the locator and
// the float32 vector. A 512-d signature costs about 2.1KB.
func encodeGallery(sigs []models.Signature) ([]byte, error) {
	size := 5
	for i := range sigs {
		size += 16 + 16 + 8 + 2 + len(sigs[i].ImageLocator) + 4 + 4*len(sigs[i].Vector)
	}
	buf := make([]byte, 0, size)

	buf = append(buf, galleryCodecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sigs)))
	for i := range sigs {
		s := &sigs[i]
		buf = append(buf, s.ID[:]...)
		buf = append(buf, s.PersonID[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.CreatedAt.UnixNano()))
		loc := s.ImageLocator
		if len(loc) > math.MaxUint16 {
			return nil, fmt.Errorf("signature %s: locator too long", s.ID)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(loc)))
		buf = append(buf, loc...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Vector)))
		for _, f := range s.Vector {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf, nil
}

func decodeGallery(data []byte) ([]models.Signature, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, errCorruptGallery
	}
	if version != galleryCodecVersion {
		return nil, fmt.Errorf("%w: version %d", errCorruptGallery, version)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errCorruptGallery
	}
	// every entry needs at least its fixed header
	if uint64(count)*46 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", errCorruptGallery, count, r.Len())
	}

	sigs := make([]models.Signature, count)
	for i := range sigs {
		if err := readSignature(r, &sigs[i]); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorruptGallery, i, err)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errCorruptGallery, r.Len())
	}
	return sigs, nil
}

func readSignature(r *bytes.Reader, s *models.Signature) error {
	var head struct {
		ID       uuid.UUID
		PersonID uuid.UUID
		Created  int64
		LocLen   uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return err
	}
	loc := make([]byte, head.LocLen)
	if _, err := io.ReadFull(r, loc); err != nil {
		return err
	}

	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if uint64(dim)*4 > uint64(r.Len()) {
		return io.ErrUnexpectedEOF
	}
	vec := make([]float32, dim)
	if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
		return err
	}

	s.ID = head.ID
	s.PersonID = head.PersonID
	s.CreatedAt = time.Unix(0, head.Created).UTC()
	s.ImageLocator = string(loc)
	s.Vector = vec
	return nil
}
