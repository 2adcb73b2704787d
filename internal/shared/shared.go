// package shared defines helpers used across the amx packages
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// MarshalJSON marshals data to JSON, optionally indented.
func MarshalJSON(data any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// featMarkers are the annotations stripped from titles and artists before
// catalog queries. Input is lowercased first, so markers are lowercase.
var featMarkers = []string{"feat.", "feat ", "featuring ", "ft.", "ft "}

// NormalizeTitle lowercases a track title, removes parenthetical and bracketed
// suffixes ("(Remastered)", "[Live]"), removes featuring annotations, and
// collapses runs of whitespace. Normalization is idempotent: applying it to an
// already-normalized title returns the same string.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = stripDelimited(s, '(', ')')
	s = stripDelimited(s, '[', ']')
	s = stripFeaturing(s)
	return collapseSpaces(s)
}

// NormalizeArtist lowercases an artist name, removes featuring annotations,
// and collapses runs of whitespace.
func NormalizeArtist(artist string) string {
	s := strings.ToLower(artist)
	s = stripFeaturing(s)
	return collapseSpaces(s)
}

// NormalizeTrackKey builds the identity key used for title/artist matching:
// normalized title and artist joined with a pipe.
func NormalizeTrackKey(title, artist string) string {
	return NormalizeTitle(title) + "|" + NormalizeArtist(artist)
}

// NormalizeAlbumKey builds the identity key for an album: lowercased,
// whitespace-collapsed title and artist joined with a pipe. Parentheticals are
// kept since album editions ("X (Deluxe)") are distinct saved-album entries.
func NormalizeAlbumKey(title, artist string) string {
	return collapseSpaces(strings.ToLower(title)) + "|" + collapseSpaces(strings.ToLower(artist))
}

// stripDelimited removes every open..close delimited span, including the delimiters.
func stripDelimited(s string, open, close byte) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			if depth > 0 {
				depth--
				continue
			}
			b.WriteByte(s[i])
		default:
			if depth == 0 {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}

// stripFeaturing truncates at the first featuring-style marker.
func stripFeaturing(s string) string {
	for _, marker := range featMarkers {
		if idx := strings.Index(s, marker); idx >= 0 {
			s = s[:idx]
		}
	}
	return s
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatDuration renders a duration in seconds as m:ss.
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser opens the default system browser to the specified URL.
//
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
