package urlid

import (
	"fmt"
	"time"
)

// Archive names a third-party web archive.
type Archive string

const (
	ArchiveWayback      Archive = "wayback_machine"
	ArchiveArchiveToday Archive = "archive_today"
	ArchiveGoogleCache  Archive = "google_cache"
)

// iaTimestamp is the Internet Archive timestamp layout, which archive.today
// also understands.
const iaTimestamp = "20060102150405"

// ArchiveLinks returns links to archived copies of u as of circa (UTC).
func ArchiveLinks(u URL, circa time.Time) (map[Archive]URL, error) {
	ts := circa.UTC().Format(iaTimestamp)
	raw := map[Archive]string{
		ArchiveWayback:      fmt.Sprintf("https://web.archive.org/web/%s/%s", ts, u),
		ArchiveArchiveToday: fmt.Sprintf("https://archive.today/%s/%s", ts, u),
		ArchiveGoogleCache:  fmt.Sprintf("https://webcache.googleusercontent.com/search?q=cache:%s", u),
	}

	links := make(map[Archive]URL, len(raw))
	for archive, s := range raw {
		link, err := Canonicalize(s, true)
		if err != nil {
			return nil, fmt.Errorf("%s link: %w", archive, err)
		}
		links[archive] = link
	}
	return links, nil
}
