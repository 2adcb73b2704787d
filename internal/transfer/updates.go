package transfer

import (
	"fmt"

	"github.com/desertthunder/amx/internal/catalog"
)

// ProgressUpdate represents a progress event during a transfer run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Category Category
	State    State  // category state at the time of the event
	Message  string // human-readable message for display
}

func stateUpdate(cat Category, state State) ProgressUpdate {
	return ProgressUpdate{
		Category: cat,
		State:    state,
		Message:  fmt.Sprintf("%s: %s", cat, state),
	}
}

func enumeratingUpdate(cat Category, source string) ProgressUpdate {
	return ProgressUpdate{
		Category: cat,
		State:    Enumerating,
		Message:  fmt.Sprintf("Enumerating %s on %s...", cat, source),
	}
}

func resolveUpdate(cat Category, step int, track catalog.TrackRef) ProgressUpdate {
	return ProgressUpdate{
		Category: cat,
		State:    Matching,
		Message:  fmt.Sprintf("[%d] %s", step, track),
	}
}

func playlistUpdate(name string, created bool) ProgressUpdate {
	verb := "Updating"
	if created {
		verb = "Creating"
	}
	return ProgressUpdate{
		Category: Playlists,
		State:    Writing,
		Message:  fmt.Sprintf("%s playlist: %s", verb, name),
	}
}

func albumUpdate(album catalog.AlbumRef, native bool) ProgressUpdate {
	mode := "track by track"
	if native {
		mode = "album save"
	}
	return ProgressUpdate{
		Category: Albums,
		State:    Writing,
		Message:  fmt.Sprintf("Saving %s by %s (%s)", album.Title, album.Artist, mode),
	}
}

func reportedUpdate(cat Category, o Outcome) ProgressUpdate {
	return ProgressUpdate{
		Category: cat,
		State:    Reported,
		Message:  fmt.Sprintf("%s: %d/%d transferred", cat, o.Succeeded, o.Attempted),
	}
}
