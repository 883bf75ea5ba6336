package psdoc

import (
	"bufio"
	"bytes"
	"image"
	"strconv"
	"strings"

	"github.com/wudi/docview/geo"
)

// dscInfo is the document structuring convention data lifted from the
// comment header.
type dscInfo struct {
	Version       string // DSC version from the %!PS-Adobe- line
	EPSF          bool
	LanguageLevel int
	Pages         int // -1 when absent or deferred
	BoundingBox   geo.Rect
	HiResBox      geo.Rect
	Title         string
	Creator       string
	CreationDate  string
}

// parseDSC scans the whole file for DSC comments. Later occurrences win
// so "(atend)" values get their deferred trailer form.
func parseDSC(data []byte) dscInfo {
	info := dscInfo{Pages: -1}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	firstLine := true
	for sc.Scan() {
		line := sc.Text()
		if firstLine {
			firstLine = false
			if rest, ok := strings.CutPrefix(line, "%!PS-Adobe-"); ok {
				fields := strings.Fields(rest)
				if len(fields) > 0 {
					info.Version = fields[0]
				}
				for _, f := range fields[1:] {
					if strings.HasPrefix(f, "EPSF-") {
						info.EPSF = true
					}
				}
			}
			continue
		}
		if !strings.HasPrefix(line, "%%") {
			continue
		}
		key, value, _ := strings.Cut(line[2:], ":")
		value = strings.TrimSpace(value)
		switch key {
		case "BoundingBox":
			if r, ok := parseBBox(value); ok {
				info.BoundingBox = r
			}
		case "HiResBoundingBox":
			if r, ok := parseBBox(value); ok {
				info.HiResBox = r
			}
		case "Pages":
			if fields := strings.Fields(value); len(fields) > 0 {
				if n, err := strconv.Atoi(fields[0]); err == nil && n >= 0 {
					info.Pages = n
				}
			}
		case "LanguageLevel":
			if n, err := strconv.Atoi(value); err == nil {
				info.LanguageLevel = n
			}
		case "Title":
			info.Title = value
		case "Creator":
			info.Creator = value
		case "CreationDate":
			info.CreationDate = value
		}
	}
	return info
}

// parseBBox parses "llx lly urx ury" with integer or real coordinates.
func parseBBox(s string) (geo.Rect, bool) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return geo.Rect{}, false
	}
	var v [4]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return geo.Rect{}, false
		}
		v[i] = x
	}
	if v[2] <= v[0] || v[3] <= v[1] {
		return geo.Rect{}, false
	}
	return geo.Rect{X: v[0], Y: v[1], Width: v[2] - v[0], Height: v[3] - v[1]}, true
}

// countShowpages counts showpage operators outside comments and
// strings. It is the page-count fallback when %%Pages is absent.
func countShowpages(data []byte) int {
	const op = "showpage"
	count := 0
	i := 0
	for i < len(data) {
		switch data[i] {
		case '%':
			for i < len(data) && data[i] != '\n' {
				i++
			}
		case '(':
			depth := 1
			i++
			for i < len(data) && depth > 0 {
				switch data[i] {
				case '\\':
					i++
				case '(':
					depth++
				case ')':
					depth--
				}
				i++
			}
		case '<':
			// Hex or base-85 string; ends at '>'.
			for i < len(data) && data[i] != '>' {
				i++
			}
		default:
			if data[i] == op[0] && bytes.HasPrefix(data[i:], []byte(op)) {
				before := byte(' ')
				if i > 0 {
					before = data[i-1]
				}
				after := byte(' ')
				if i+len(op) < len(data) {
					after = data[i+len(op)]
				}
				if isDelimiter(before) && isDelimiter(after) {
					count++
				}
				i += len(op)
				continue
			}
			i++
		}
	}
	return count
}

func isDelimiter(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0, '{', '}', '[', ']', '(', ')', '<', '>', '/', '%':
		return true
	}
	return false
}

// parsePreview decodes an EPSI %%BeginPreview hex block into a
// grayscale image. Returns nil when no preview is present.
func parsePreview(data []byte) image.Image {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var width, height, depth int
	var hex []byte
	inPreview := false
	for sc.Scan() {
		line := sc.Text()
		if !inPreview {
			rest, ok := strings.CutPrefix(line, "%%BeginPreview:")
			if !ok {
				continue
			}
			fields := strings.Fields(rest)
			if len(fields) < 3 {
				return nil
			}
			width, _ = strconv.Atoi(fields[0])
			height, _ = strconv.Atoi(fields[1])
			depth, _ = strconv.Atoi(fields[2])
			if width < 1 || height < 1 || (depth != 1 && depth != 8) {
				return nil
			}
			inPreview = true
			continue
		}
		if strings.HasPrefix(line, "%%EndPreview") {
			break
		}
		for _, c := range []byte(strings.TrimPrefix(line, "%")) {
			if isHexDigit(c) {
				hex = append(hex, c)
			}
		}
	}
	if !inPreview {
		return nil
	}

	raw := make([]byte, 0, len(hex)/2)
	for i := 0; i+1 < len(hex); i += 2 {
		raw = append(raw, hexVal(hex[i])<<4|hexVal(hex[i+1]))
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if depth == 8 {
		rowBytes := width
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				idx := y*rowBytes + x
				if idx >= len(raw) {
					return img
				}
				img.Pix[y*img.Stride+x] = raw[idx]
			}
		}
		return img
	}
	// depth 1: one bit per pixel, rows padded to a byte boundary, set
	// bit means black.
	rowBytes := (width + 7) / 8
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*rowBytes + x/8
			if idx >= len(raw) {
				return img
			}
			v := byte(0xff)
			if raw[idx]&(0x80>>uint(x%8)) != 0 {
				v = 0
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
