package imageutil

// YUYVToGray copies the luminance byte of every YUYV pixel in src into dst
// and returns the number of pixels written. Conversion stops at whichever of
// width*height, len(src)/2 or len(dst) is smallest.
func YUYVToGray(src []byte, width, height int, dst []byte) int {
	n := width * height
	if n < 0 {
		n = 0
	}
	if n > len(src)/2 {
		n = len(src) / 2
	}
	if n > len(dst) {
		n = len(dst)
	}
	for k := 0; k < n; k++ {
		dst[k] = src[k*2]
	}
	return n
}

// Normalize stretches pix in place so its darkest sample becomes 0 and its
// brightest 255. Uniform input is left unchanged.
func Normalize(pix []byte) {
	if len(pix) == 0 {
		return
	}
	lo, hi := pix[0], pix[0]
	for _, p := range pix[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	span := float32(hi) - float32(lo)
	if span <= 0 {
		return
	}
	for i, p := range pix {
		pix[i] = uint8((float32(p) - float32(lo)) / span * 255)
	}
}
