package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTrimWindow indicates a trim window which cannot produce any
// output: the start point is at (or beyond) the end point once both have
// been clamped to the actual duration of the source media.
var ErrInvalidTrimWindow = errors.New("invalid trim window")

// TrimWindow is the requested sub-range of the source media to retain,
// normalized to whole seconds. The END of the window is exclusive.
type TrimWindow struct {
	StartSecs int
	EndSecs   int
}

// ParseTrimWindow normalizes the 'HH:MM:SS' or 'MM:SS' form timestamps
// in to a TrimWindow. Both timestamps being absent means 'full media' and
// yields a nil window; providing only one of the two is an error, as is
// a window whose end does not come after its start.
func ParseTrimWindow(start string, end string) (*TrimWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}

	if start == "" || end == "" {
		return nil, fmt.Errorf("%w: both trim_start and trim_end must be provided", ErrInvalidTrimWindow)
	}

	startSecs, err := ParseTimestamp(start)
	if err != nil {
		return nil, fmt.Errorf("%w: trim_start %q: %v", ErrInvalidTrimWindow, start, err)
	}

	endSecs, err := ParseTimestamp(end)
	if err != nil {
		return nil, fmt.Errorf("%w: trim_end %q: %v", ErrInvalidTrimWindow, end, err)
	}

	if endSecs <= startSecs {
		return nil, fmt.Errorf("%w: end (%ds) must be after start (%ds)", ErrInvalidTrimWindow, endSecs, startSecs)
	}

	return &TrimWindow{StartSecs: startSecs, EndSecs: endSecs}, nil
}

// ClampToDuration returns a copy of this window with the end point clamped
// to the duration provided. A window which becomes empty after clamping is
// rejected with ErrInvalidTrimWindow rather than producing a zero-length
// (or corrupted) output. A non-positive duration means the source duration
// is unknown and the window is returned unchanged.
func (window *TrimWindow) ClampToDuration(durationSecs int) (*TrimWindow, error) {
	clamped := *window
	if durationSecs > 0 && clamped.EndSecs > durationSecs {
		clamped.EndSecs = durationSecs
	}

	if clamped.StartSecs >= clamped.EndSecs {
		return nil, fmt.Errorf("%w: start (%ds) is beyond the end of the media (%ds)", ErrInvalidTrimWindow, clamped.StartSecs, clamped.EndSecs)
	}

	return &clamped, nil
}

// DurationSecs returns the length of the window.
func (window *TrimWindow) DurationSecs() int {
	return window.EndSecs - window.StartSecs
}

// IsFullMediaFor reports whether this window covers the entire source; a
// trim phase can be skipped entirely in that case.
func (window *TrimWindow) IsFullMediaFor(durationSecs int) bool {
	return window.StartSecs == 0 && durationSecs > 0 && window.EndSecs >= durationSecs
}

func (window *TrimWindow) String() string {
	return fmt.Sprintf("[%s, %s)", FormatTimestamp(window.StartSecs), FormatTimestamp(window.EndSecs))
}

// ParseTimestamp converts a 'HH:MM:SS' or 'MM:SS' form timestamp in to
// whole seconds. Subordinate fields must be within [0, 60).
func ParseTimestamp(timestamp string) (int, error) {
	parts := strings.Split(timestamp, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp must be in HH:MM:SS or MM:SS form")
	}

	total := 0
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("timestamp field %q is not a non-negative integer", part)
		}

		// Only the leading field may exceed 59.
		if i > 0 && value > 59 {
			return 0, fmt.Errorf("timestamp field %q exceeds 59", part)
		}

		total = total*60 + value
	}

	return total, nil
}

// FormatTimestamp renders whole seconds as a 'HH:MM:SS' timestamp suitable
// for handing to the external transcoder.
func FormatTimestamp(totalSecs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", totalSecs/3600, (totalSecs%3600)/60, totalSecs%60)
}
