// package formatter renders generated playlists for dry runs (plain text, Markdown, CSV, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
)

// Format is an output format for a generated playlist.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	CSV      Format = "csv"
	JSON     Format = "json"
)

// Formats lists every supported format, for flag help.
var Formats = []Format{Text, Markdown, CSV, JSON}

// ParseFormat resolves a --format value. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Text, Markdown, CSV, JSON:
		return f, nil
	case "", "txt":
		return Text, nil
	case "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func albumName(t models.Track) string {
	if t.Album == nil {
		return ""
	}
	return t.Album.Name
}

func releaseYear(t models.Track) string {
	if t.Album == nil || t.Album.ReleaseDate == nil {
		return ""
	}
	return strconv.Itoa(t.Album.ReleaseDate.Year())
}

// ExportToCSV converts a playlist to CSV format with columns: Position, ID, Title, Artist, Album, Year, Duration, ISRC
func ExportToCSV(result *tasks.Result) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artist", "Album", "Year", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range result.OrderedTracks() {
		record := []string{
			strconv.Itoa(i + 1),
			track.ID,
			track.Name,
			track.ArtistNames(),
			albumName(track),
			releaseYear(track),
			strconv.Itoa(track.DurationMS),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown with a per-artist summary
func ExportToMarkdown(result *tasks.Result, name string) ([]byte, error) {
	var buf bytes.Buffer
	tracks := result.OrderedTracks()

	fmt.Fprintf(&buf, "# %s\n\n", name)
	fmt.Fprintf(&buf, "**Service**: %s\n", result.Service)
	fmt.Fprintf(&buf, "**Run**: %s\n", result.RunID)
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(tracks))
	fmt.Fprintf(&buf, "**Duration**: %s\n\n", FormatDuration(totalDuration(tracks)))

	buf.WriteString("## Artists\n\n")
	for _, s := range Summarize(result) {
		fmt.Fprintf(&buf, "- %s: %d\n", s.Name, s.Tracks)
	}

	buf.WriteString("\n## Tracks\n\n")
	for i, track := range tracks {
		albumPart := ""
		if album := albumName(track); album != "" {
			albumPart = fmt.Sprintf(" (%s)", album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.ArtistNames(), track.Name, albumPart, FormatDuration(track.DurationMS))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text format
func ExportToText(result *tasks.Result, name string) ([]byte, error) {
	var buf bytes.Buffer
	tracks := result.OrderedTracks()

	fmt.Fprintf(&buf, "Playlist: %s\n", name)
	fmt.Fprintf(&buf, "Service: %s\n", result.Service)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))

	for i, track := range tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.ArtistNames(), track.Name)
	}

	return buf.Bytes(), nil
}

type jsonExport struct {
	Name    string          `json:"name"`
	Service string          `json:"service"`
	RunID   string          `json:"run_id"`
	Artists []ArtistSummary `json:"artists"`
	Tracks  []models.Track  `json:"tracks"`
}

// ExportToJSON converts a playlist to indented JSON with its tracks in order
func ExportToJSON(result *tasks.Result, name string) ([]byte, error) {
	data, err := json.MarshalIndent(jsonExport{
		Name:    name,
		Service: result.Service,
		RunID:   result.RunID,
		Artists: Summarize(result),
		Tracks:  result.OrderedTracks(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ArtistSummary counts how many tracks an artist contributed to the final playlist.
type ArtistSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks int    `json:"tracks"`
}

// Summarize counts the final tracks per artist, in request order.
// A track shared by two artists counts for the artist whose playlist placed it first.
func Summarize(result *tasks.Result) []ArtistSummary {
	owner := make(map[string]string, len(result.TrackIDs))
	for _, p := range result.Playlists {
		for _, id := range p.TrackIDs {
			if _, ok := owner[id]; !ok {
				owner[id] = p.ArtistID
			}
		}
	}

	counts := make(map[string]int, len(result.Artists))
	for _, id := range result.TrackIDs {
		counts[owner[id]]++
	}

	summary := make([]ArtistSummary, 0, len(result.Artists))
	for _, a := range result.Artists {
		summary = append(summary, ArtistSummary{ID: a.ID, Name: a.Name, Tracks: counts[a.ID]})
	}
	return summary
}

func totalDuration(tracks []models.Track) int {
	total := 0
	for _, t := range tracks {
		total += t.DurationMS
	}
	return total
}

// Write renders result in format f to w.
func Write(w io.Writer, f Format, result *tasks.Result, name string) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case Text:
		data, err = ExportToText(result, name)
	case Markdown:
		data, err = ExportToMarkdown(result, name)
	case CSV:
		data, err = ExportToCSV(result)
	case JSON:
		data, err = ExportToJSON(result, name)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s output: %w", f, err)
	}
	return nil
}
