package enrich

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

// pictureFrontCover is the FLAC/ID3 picture type for a front cover.
const pictureFrontCover = 3

// flacPicture encodes a FLAC METADATA_BLOCK_PICTURE for a JPEG image.
func flacPicture(jpeg []byte, width, height int) []byte {
	var b bytes.Buffer
	put := func(v uint32) { binary.Write(&b, binary.BigEndian, v) }
	putBytes := func(p []byte) {
		put(uint32(len(p)))
		b.Write(p)
	}

	put(pictureFrontCover)
	putBytes([]byte("image/jpeg"))
	putBytes([]byte("Cover"))
	put(uint32(width))
	put(uint32(height))
	put(24) // color depth
	put(0)  // indexed colors
	putBytes(jpeg)
	return b.Bytes()
}

// vorbisPictureComment returns the base64 value for a
// METADATA_BLOCK_PICTURE Vorbis comment.
func vorbisPictureComment(jpeg []byte, width, height int) string {
	return base64.StdEncoding.EncodeToString(flacPicture(jpeg, width, height))
}
