package ocr

// Package ocr defines the seam for plugging third-party OCR engines
// (for example, Tesseract or cloud services) into the viewer core.
// Recognition always runs out-of-band with respect to the render
// pipeline: an OcrPage rasterizes through Page.RenderImage directly and
// never enqueues pipeline work. The interfaces are intentionally small
// and transport-agnostic so engines can be backed by native libraries,
// local binaries, or remote APIs without leaking provider-specific
// concerns into callers.
