// Package fileid derives stable identifiers for reference images: one from the file path,
// one from the decoded pixels.
package fileid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"path/filepath"
)

const (
	pathPrefix  = "file:"
	imagePrefix = "img:"
)

// PathID returns a stable ID for the given path.
// Same path always yields the same ID.
func PathID(path string) string {
	normalized := filepath.ToSlash(filepath.Clean(path))
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// ImageID returns an ID derived from the image's size and RGBA pixels, so the same picture
// decoded from different files or encodings of the same pixels gets the same ID.
func ImageID(img image.Image) string {
	h := sha256.New()
	b := img.Bounds()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(b.Dx()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(b.Dy()))
	h.Write(buf[:])

	row := make([]byte, 0, b.Dx()*8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row = row[:0]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			row = append(row, byte(r>>8), byte(r), byte(g>>8), byte(g), byte(bl>>8), byte(bl), byte(a>>8), byte(a))
		}
		h.Write(row)
	}
	return imagePrefix + hex.EncodeToString(h.Sum(nil))
}
