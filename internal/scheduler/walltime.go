package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
)

// Normalize accepts a walltime in any of MM:SS, HH:MM:SS, or D-HH:MM:SS
// form and returns the canonical HH:MM:SS form, with hours computed as
// 24*D + H. Normalize is idempotent: Normalize(Normalize(w)) == Normalize(w)
// for every valid w.
func Normalize(w string) (string, error) {
	days := 0
	rest := w
	if i := strings.IndexByte(w, '-'); i >= 0 {
		d, err := strconv.Atoi(w[:i])
		if err != nil {
			return "", cstarerrors.Validation("scheduler.Normalize", fmt.Sprintf("invalid day count in walltime %q", w))
		}
		days = d
		rest = w[i+1:]
	}

	parts := strings.Split(rest, ":")
	var h, m, s int
	var err error
	switch len(parts) {
	case 2: // MM:SS
		m, err = strconv.Atoi(parts[0])
		if err == nil {
			s, err = strconv.Atoi(parts[1])
		}
	case 3: // HH:MM:SS
		h, err = strconv.Atoi(parts[0])
		if err == nil {
			m, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			s, err = strconv.Atoi(parts[2])
		}
	default:
		return "", cstarerrors.Validation("scheduler.Normalize", fmt.Sprintf("unrecognised walltime format %q", w))
	}
	if err != nil {
		return "", cstarerrors.Validation("scheduler.Normalize", fmt.Sprintf("unrecognised walltime format %q", w))
	}

	h += 24 * days
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}

// Compare reports -1, 0, 1 as walltime a is less than, equal to, or
// greater than walltime b, after normalising both.
func Compare(a, b string) (int, error) {
	na, err := Normalize(a)
	if err != nil {
		return 0, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return 0, err
	}
	secA, err := toSeconds(na)
	if err != nil {
		return 0, err
	}
	secB, err := toSeconds(nb)
	if err != nil {
		return 0, err
	}
	switch {
	case secA < secB:
		return -1, nil
	case secA > secB:
		return 1, nil
	default:
		return 0, nil
	}
}

func toSeconds(canonical string) (int, error) {
	parts := strings.Split(canonical, ":")
	if len(parts) != 3 {
		return 0, cstarerrors.Validation("scheduler.toSeconds", fmt.Sprintf("not a canonical walltime: %q", canonical))
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	return h*3600 + m*60 + s, nil
}
