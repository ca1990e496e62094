package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"
	TextPlain   MIME = "text/plain"

	ApplicationPDF MIME = "application/pdf"
	ApplicationZIP MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"

	VideoMP4  MIME = "video/mp4"
	VideoMKV  MIME = "video/x-matroska"
	VideoWEBM MIME = "video/webm"

	AudioMPEG MIME = "audio/mpeg"
	AudioWAV  MIME = "audio/wav"
	AudioOGG  MIME = "audio/ogg"
	AudioFLAC MIME = "audio/flac"
)

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// ToMIME strips parameters such as charset from a detected media type.
func ToMIME(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil || mt == "" {
		return Unknown
	}
	return MIME(mt)
}

func (m MIME) IsImage() bool { return strings.HasPrefix(string(m), "image/") }
func (m MIME) IsVideo() bool { return strings.HasPrefix(string(m), "video/") }
func (m MIME) IsAudio() bool { return strings.HasPrefix(string(m), "audio/") }

// Decodable reports whether the thumbnail generator can read the format.
func (m MIME) Decodable() bool {
	switch m {
	case ImagePNG, ImageJPEG, ImageGIF:
		return true
	}
	return false
}
