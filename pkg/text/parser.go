// Package text parses plain-text song lists into structured songs.
package text

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"songlift/internal/core"
)

const (
	titleArtistSeparator = " - "
	artistSeparator      = " / "

	// maxLineBytes bounds a single input line; anything longer is a read
	// error, not a parse error.
	maxLineBytes = 1 << 20
)

// Parser turns raw text lines into ParsedSong values. One malformed line never
// aborts the stream; it yields a ParseError instead.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Each streams the input line by line, invoking exactly one of onSong or onErr
// for every non-empty line. Empty lines are skipped and consume no sequence
// number. A read error on the stream is fatal and returned to the caller.
func (p *Parser) Each(r io.Reader, onSong func(core.ParsedSong), onErr func(core.ParseError)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNumber := 0
	seq := 0
	for scanner.Scan() {
		lineNumber++
		raw := scanner.Text()

		if strings.TrimSpace(raw) == "" {
			continue
		}

		song, perr := parseLine(raw)
		if perr != "" {
			onErr(core.ParseError{
				Seq:        seq,
				LineNumber: lineNumber,
				Line:       raw,
				Reason:     perr,
			})
			seq++
			continue
		}

		song.Seq = seq
		song.Line = raw
		onSong(song)
		seq++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// ParseLines drains the input and returns all songs and per-line errors.
func (p *Parser) ParseLines(r io.Reader) ([]core.ParsedSong, []core.ParseError, error) {
	var songs []core.ParsedSong
	var errs []core.ParseError

	err := p.Each(r,
		func(s core.ParsedSong) { songs = append(songs, s) },
		func(e core.ParseError) { errs = append(errs, e) },
	)
	if err != nil {
		return nil, nil, err
	}
	return songs, errs, nil
}

// parseLine applies the line grammar to a non-empty line. The separator
// search runs on the raw line so that a leading " - " (empty title) is still
// recognized and rejected rather than swallowed by whitespace trimming.
// It returns a non-empty reason string when the line is malformed.
func parseLine(line string) (core.ParsedSong, string) {
	idx := strings.Index(line, titleArtistSeparator)
	if idx < 0 {
		// The whole line is the title; no artists.
		return core.ParsedSong{Title: strings.TrimSpace(line)}, ""
	}

	title := strings.TrimSpace(line[:idx])
	artistPart := strings.TrimSpace(line[idx+len(titleArtistSeparator):])

	if title == "" {
		return core.ParsedSong{}, "empty title before \" - \" separator"
	}
	if artistPart == "" {
		return core.ParsedSong{}, "empty artist list after \" - \" separator"
	}

	var artists []string
	for _, a := range strings.Split(artistPart, artistSeparator) {
		a = strings.TrimSpace(a)
		if a != "" {
			artists = append(artists, a)
		}
	}
	if len(artists) == 0 {
		return core.ParsedSong{}, "artist list contains no artists"
	}

	return core.ParsedSong{Title: title, Artists: artists}, ""
}
