package enrich

import (
	"bytes"
	"fmt"

	"github.com/bogem/id3v2/v2"
)

const tocTitle = "Table of Contents"

// CTOC flags: top-level and ordered.
const ctocFlags = 0x03

func writeMP3Cover(path string, jpeg []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     jpeg,
	})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

func writeMP3Chapters(path string, chapters []Chapter) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.DeleteFrames("CHAP")
	tag.DeleteFrames("CTOC")

	ids := make([]string, 0, len(chapters))
	for i, ch := range chapters {
		id := fmt.Sprintf("chp%d", i)
		ids = append(ids, id)
		tag.AddChapterFrame(id3v2.ChapterFrame{
			ElementID:   id,
			StartTime:   ch.Start,
			EndTime:     ch.End,
			StartOffset: id3v2.IgnoredOffset,
			EndOffset:   id3v2.IgnoredOffset,
			Title: &id3v2.TextFrame{
				Encoding: id3v2.EncodingUTF8,
				Text:     ch.Title,
			},
		})
	}
	tag.AddFrame("CTOC", id3v2.UnknownFrame{Body: ctocBody(ids, tag.Version())})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

// ctocBody encodes a top-level table of contents listing the given chapter
// element IDs, with a TIT2 sub-frame naming it.
func ctocBody(ids []string, version byte) []byte {
	var b bytes.Buffer
	b.WriteString("toc")
	b.WriteByte(0)
	b.WriteByte(ctocFlags)
	b.WriteByte(byte(len(ids)))
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(0)
	}

	// TIT2 sub-frame: UTF-8 encoding byte followed by the text.
	title := append([]byte{3}, tocTitle...)
	b.WriteString("TIT2")
	b.Write(frameSize(len(title), version))
	b.Write([]byte{0, 0})
	b.Write(title)
	return b.Bytes()
}

// frameSize encodes an ID3 frame size: synchsafe for v2.4, plain
// big-endian for v2.3.
func frameSize(n int, version byte) []byte {
	if version == 4 {
		return []byte{
			byte(n>>21) & 0x7f,
			byte(n>>14) & 0x7f,
			byte(n>>7) & 0x7f,
			byte(n) & 0x7f,
		}
	}
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}
