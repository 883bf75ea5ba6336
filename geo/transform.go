package geo

// PDFToPixel maps a point in page space onto a rendered image of the given
// pixel size. The page Y axis grows upward, the pixel Y axis downward.
func PDFToPixel(p Point, render Size, page Size) Pixel {
	sx := render.Width / page.Width
	sy := render.Height / page.Height
	return Pixel{
		X: p.X * sx,
		Y: (page.Height - p.Y) * sy,
	}
}

// PixelToPDF is the inverse of PDFToPixel.
func PixelToPDF(px Pixel, render Size, page Size) Point {
	sx := page.Width / render.Width
	sy := page.Height / render.Height
	return Point{
		X: px.X * sx,
		Y: page.Height - px.Y*sy,
	}
}

// RectToPixels maps a page-space rectangle onto image coordinates,
// returning the top-left corner and pixel extent.
func RectToPixels(r Rect, render Size, page Size) (topLeft Pixel, size Size) {
	tl := PDFToPixel(Point{r.Left(), r.Top()}, render, page)
	br := PDFToPixel(Point{r.Right(), r.Bottom()}, render, page)
	return tl, Size{Width: br.X - tl.X, Height: br.Y - tl.Y}
}

// RotatedSize returns the page size after applying an intrinsic rotation of
// 0, 90, 180 or 270 degrees.
func RotatedSize(page Size, rotation int) Size {
	switch ((rotation % 360) + 360) % 360 {
	case 90, 270:
		return Size{Width: page.Height, Height: page.Width}
	default:
		return page
	}
}
