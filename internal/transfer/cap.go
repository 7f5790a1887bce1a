package transfer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/handiism/photo-mirror/internal/errors"
)

// Cap limits how many photos a run attempts.
type Cap struct {
	All bool
	N   int
}

// CapAll attempts every photo.
var CapAll = Cap{All: true}

func (c Cap) String() string {
	if c.All {
		return "all"
	}
	return strconv.Itoa(c.N)
}

// ParseCap parses "all" (or an empty string) and integers. Anything else is
// rejected; range problems are handled later by ResolveCap.
func ParseCap(s string) (Cap, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return CapAll, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return Cap{}, fmt.Errorf("invalid count %q: must be a number or \"all\"", s)
	}
	return Cap{N: n}, nil
}

// ResolveCap returns the number of photos to attempt out of n.
//
// "all" yields n. A negative count is taken as its absolute value and a count
// above n is clamped to n. Whenever the requested count had to be changed the
// resolved value comes with a CAPACITY error, which callers report as a
// warning.
func ResolveCap(c Cap, n int) (int, error) {
	if c.All {
		return n, nil
	}

	want := c.N
	var notes []string
	if want < 0 {
		want = -want
		notes = append(notes, fmt.Sprintf("negative count %d taken as %d", c.N, want))
	}
	if want > n {
		notes = append(notes, fmt.Sprintf("count %d exceeds %d available photos", want, n))
		want = n
	}

	if len(notes) > 0 {
		return want, errors.Errorf(errors.KindCapacity, "resolve cap", "%s", strings.Join(notes, "; "))
	}
	return want, nil
}
