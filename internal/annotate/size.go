package annotate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Size is a pixel bounding box. The zero Size means unbounded.
type Size struct {
	Width  int
	Height int
}

// IsZero reports whether s places no bound.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func isSizeSep(r rune) bool {
	return r == 'x' || r == 'X' || r == '*' || r == '×'
}

// ParseSize parses "WxH", "W*H" or "W×H". Both sides must be positive integers.
func ParseSize(s string) (Size, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), isSizeSep)
	if len(parts) != 2 || strings.Count(s, "x")+strings.Count(s, "X")+strings.Count(s, "*")+strings.Count(s, "×") != 1 {
		return Size{}, invalidSize(s, "expected WIDTHxHEIGHT")
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Size{}, invalidSize(s, "width is not a number")
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Size{}, invalidSize(s, "height is not a number")
	}
	if w <= 0 || h <= 0 {
		return Size{}, invalidSize(s, "width and height must be positive")
	}
	return Size{Width: w, Height: h}, nil
}

func invalidSize(s, reason string) error {
	return errors.Newf("invalid image size %q: %s", s, reason).
		Component("annotate").
		Category(errors.CategoryValidation).
		Build()
}
