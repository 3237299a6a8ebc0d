package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	th "github.com/desertthunder/mixtape/internal/testing"
)

func testResult() *tasks.Result {
	released := time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)
	one := models.Artist{ID: "a1", Name: "Artist One"}
	two := models.Artist{ID: "a2", Name: "Artist Two"}
	album := &models.Album{ID: "al1", Name: "Album One", ReleaseDate: &released}

	tracks := []models.Track{
		models.NewTrack("t1", "Song One", 185000, "USRC12345678", album, []models.Artist{one}),
		models.NewTrack("t2", "Song, Two", 240000, "", nil, []models.Artist{two}),
		models.NewTrack("t3", "Duet", 61000, "", album, []models.Artist{one, two}),
	}

	result := &tasks.Result{
		RunID:   "run-1",
		Service: "spotify",
		Tracks:  map[string]models.Track{},
		Artists: []models.Artist{one, two},
		Playlists: []tasks.ArtistPlaylist{
			{ArtistID: "a1", TrackIDs: []string{"t1", "t3"}},
			{ArtistID: "a2", TrackIDs: []string{"t2", "t3"}},
		},
		TrackIDs: []string{"t2", "t1", "t3"},
	}
	for _, t := range tracks {
		result.Tracks[t.ID] = t
	}
	return result
}

func TestExporters(t *testing.T) {
	result := testResult()

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(result)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("failed to parse CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "Position,ID,Title,Artist,Album,Year,Duration,ISRC" {
			t.Errorf("unexpected headers %v", records[0])
		}
		if records[1][1] != "t2" || records[1][2] != "Song, Two" || records[1][4] != "" {
			t.Errorf("expected the first row to follow playlist order, got %v", records[1])
		}
		if records[2][5] != "2019" || records[2][7] != "USRC12345678" {
			t.Errorf("unexpected second row %v", records[2])
		}
		if records[3][3] != "Artist One, Artist Two" {
			t.Errorf("expected joined artists, got %q", records[3][3])
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(result, "Balanced Mix")
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Balanced Mix",
			"**Tracks**: 3",
			"**Duration**: 8:06",
			"- Artist One: 2",
			"- Artist Two: 1",
			"1. Artist Two - Song, Two [4:00]",
			"2. Artist One - Song One (Album One) [3:05]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(result, "Balanced Mix")
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if lines[0] != "Playlist: Balanced Mix" {
			t.Errorf("unexpected first line %q", lines[0])
		}
		if last := lines[len(lines)-1]; last != "3. Artist One, Artist Two - Duet" {
			t.Errorf("unexpected last line %q", last)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(result, "Balanced Mix")
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded struct {
			Name    string          `json:"name"`
			Artists []ArtistSummary `json:"artists"`
			Tracks  []models.Track  `json:"tracks"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Name != "Balanced Mix" || len(decoded.Tracks) != 3 || decoded.Tracks[0].ID != "t2" {
			t.Errorf("unexpected JSON export %+v", decoded)
		}
		if len(decoded.Artists) != 2 || decoded.Artists[0].Tracks != 2 {
			t.Errorf("unexpected artist summary %+v", decoded.Artists)
		}
	})
}

func TestWrite(t *testing.T) {
	result := testResult()

	t.Run("Every format", func(t *testing.T) {
		for _, f := range Formats {
			var buf bytes.Buffer
			if err := Write(&buf, f, result, "Mix"); err != nil {
				t.Errorf("Write(%s) error = %v", f, err)
			}
			if buf.Len() == 0 {
				t.Errorf("Write(%s) produced no output", f)
			}
		}
	})

	t.Run("Writer failure", func(t *testing.T) {
		if err := Write(&th.FWriter{}, Text, result, "Mix"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("Unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, Format("xml"), result, "Mix"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Text},
		{in: "TEXT", want: Text},
		{in: "md", want: Markdown},
		{in: "markdown", want: Markdown},
		{in: " csv ", want: CSV},
		{in: "json", want: JSON},
		{in: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{0: "0:00", 999: "0:00", 61000: "1:01", 3600000: "60:00", -5: "0:00"}
	for ms, want := range tests {
		if got := FormatDuration(ms); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	result := testResult()
	result.Artists = append(result.Artists, models.Artist{ID: "a3", Name: "Silent"})

	summary := Summarize(result)
	if len(summary) != 3 || summary[2].Tracks != 0 {
		t.Errorf("expected artists without tracks to be listed with zero, got %+v", summary)
	}
}
