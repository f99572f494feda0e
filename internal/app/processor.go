package app

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageText is extracted text for one page. Pages with no extractable text
// contribute nothing.
type pageText struct {
	Page    int
	Content string
}

// pageImage is one embedded raster image attributed to a page.
type pageImage struct {
	Page     int
	Data     []byte
	MimeType string
}

// processPDF extracts per-page text and embedded images from raw PDF bytes.
// A corrupt or non-PDF input returns a ParseError; a single unreadable page
// is skipped, never fatal.
func processPDF(data []byte) (texts []pageText, images []pageImage, totalPages int, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, nil, 0, &ParseError{Err: err}
	}
	totalPages = reader.NumPage()

	jpegs := scanJPEGStreams(data)
	nextJPEG := 0

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if text := pagePlainText(page); text != "" {
			texts = append(texts, pageText{Page: i, Content: text})
		}
		for _, img := range pageImages(page, i, jpegs, &nextJPEG) {
			images = append(images, img)
		}
	}
	return texts, images, totalPages, nil
}

// openPDF guards the reader construction: the pdf library panics on some
// malformed inputs instead of returning an error.
func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func pagePlainText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return normalizeText(raw)
}

// pageImages walks the page's XObject dictionary for raster images.
// Flate-encoded 8-bit gray/RGB images are re-encoded as PNG; DCT-encoded
// streams are paired, in encounter order, with the JPEG blobs found in the
// raw file since the pdf library cannot decode that filter. Anything else
// is skipped.
func pageImages(page pdf.Page, pageNum int, jpegs [][]byte, nextJPEG *int) (out []pageImage) {
	defer func() {
		_ = recover()
	}()
	xobjects := page.V.Key("Resources").Key("XObject")
	if xobjects.Kind() != pdf.Dict && xobjects.Kind() != pdf.Stream {
		return nil
	}
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		switch streamFilter(obj) {
		case "DCTDecode":
			if *nextJPEG < len(jpegs) {
				out = append(out, pageImage{Page: pageNum, Data: jpegs[*nextJPEG], MimeType: "image/jpeg"})
				*nextJPEG++
			}
		case "FlateDecode":
			if data := decodeFlateImage(obj); data != nil {
				out = append(out, pageImage{Page: pageNum, Data: data, MimeType: "image/png"})
			}
		}
	}
	return out
}

func streamFilter(obj pdf.Value) string {
	filter := obj.Key("Filter")
	switch filter.Kind() {
	case pdf.Name:
		return filter.Name()
	case pdf.Array:
		if n := filter.Len(); n > 0 {
			return filter.Index(n - 1).Name()
		}
	}
	return ""
}

// decodeFlateImage converts an 8-bit DeviceGray/DeviceRGB flate image stream
// into a PNG.
func decodeFlateImage(obj pdf.Value) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	width := int(obj.Key("Width").Int64())
	height := int(obj.Key("Height").Int64())
	bpc := int(obj.Key("BitsPerComponent").Int64())
	if width <= 0 || height <= 0 || bpc != 8 {
		return nil
	}
	colorSpace := obj.Key("ColorSpace").Name()
	var components int
	switch colorSpace {
	case "DeviceGray":
		components = 1
	case "DeviceRGB":
		components = 3
	default:
		return nil
	}
	rc := obj.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil || len(raw) < width*height*components {
		return nil
	}

	var img image.Image
	switch components {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, raw[:width*height])
		img = gray
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 3
				rgba.SetNRGBA(x, y, color.NRGBA{R: raw[off], G: raw[off+1], B: raw[off+2], A: 255})
			}
		}
		img = rgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

var (
	jpegSOI = []byte{0xFF, 0xD8, 0xFF}
	jpegEOI = []byte{0xFF, 0xD9}
)

// minJPEGSize filters out tiny thumbnail blobs.
const minJPEGSize = 128

// scanJPEGStreams finds JPEG blobs embedded in the raw file, in file order.
func scanJPEGStreams(data []byte) [][]byte {
	var out [][]byte
	pos := 0
	for {
		start := bytes.Index(data[pos:], jpegSOI)
		if start < 0 {
			return out
		}
		start += pos
		end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
		if end < 0 {
			return out
		}
		end += start + len(jpegSOI) + len(jpegEOI)
		if end-start >= minJPEGSize {
			out = append(out, data[start:end])
		}
		pos = end
	}
}

// normalizeText strips control characters and collapses runs of whitespace.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// chunkText splits text into overlapping rune windows. Boundaries are not
// aligned to words or sentences.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
