package sample

// Downsample decimates src to at most maxPoints evenly spaced elements,
// keeping the first and the last one. The result is appended to dst[:0];
// dst is reused when it is large enough. maxPoints <= 0 keeps every element.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	n := len(src)
	if maxPoints <= 0 || n <= maxPoints {
		return append(dst[:0], src...)
	}
	dst = dst[:0]
	if maxPoints == 1 {
		return append(dst, src[0])
	}
	last := n - 1
	for i := range maxPoints {
		dst = append(dst, src[i*last/(maxPoints-1)])
	}
	return dst
}
