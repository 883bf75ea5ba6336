package ocr

import "strconv"

// WithEngineVariable passes one provider-specific setting through the
// input's metadata. Keys are engine-defined; engines ignore keys they do
// not understand.
func WithEngineVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}

// WithTesseractPSM selects Tesseract's page segmentation mode. Full
// scanned pages usually want mode 3 (fully automatic); a single text
// line cut out with WithRegion wants mode 7.
func WithTesseractPSM(mode int) InputOption {
	return WithEngineVariable("tessedit_pageseg_mode", strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to the given characters,
// for inputs with a known alphabet such as page numbers.
func WithTesseractWhitelist(chars string) InputOption {
	return WithEngineVariable("tessedit_char_whitelist", chars)
}
