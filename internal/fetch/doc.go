// Package fetch defines the platform-adapter contract for pulling media
// into the work directory, plus the registry that dispatches URLs to the
// adapter claiming them. The adapters themselves live in subpackages:
// bilibili (signed DASH downloads muxed locally), youtube (yt-dlp wrapper),
// and podcast (Apple Podcast episode audio via the iTunes feed lookup).
package fetch
