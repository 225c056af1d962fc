// Package music finds local tracks and queues them for playback through
// the delivery pipeline.
package music

import (
	"fmt"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
	"github.com/Till-X/xiaozhi-sever-DIY/core/tools"
)

// matchThreshold is the minimum similarity for a fuzzy title match; below
// it the library falls back to a random pick.
const matchThreshold = 0.4

// Enqueuer accepts ordered text-stream messages. *delivery.Pipeline
// satisfies it.
type Enqueuer interface {
	Enqueue(msg delivery.TextMessage)
}

type Track struct {
	Path  string
	Title string
}

type Library struct {
	dir        string
	extensions []string
	refresh    time.Duration

	mu        sync.Mutex
	tracks    []Track
	refreshed time.Time
}

type LibraryOption func(*Library)

// WithExtensions replaces the playable extension filter. Extensions are
// matched case-insensitively, dot included.
func WithExtensions(extensions ...string) LibraryOption {
	return func(l *Library) {
		l.extensions = nil
		for _, ext := range extensions {
			l.extensions = append(l.extensions, strings.ToLower(ext))
		}
	}
}

// WithRefreshInterval sets how long a directory scan stays fresh.
func WithRefreshInterval(interval time.Duration) LibraryOption {
	return func(l *Library) { l.refresh = interval }
}

func NewLibrary(dir string, opts ...LibraryOption) *Library {
	library := &Library{
		dir:        dir,
		extensions: []string{".wav"},
		refresh:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(library)
	}
	return library
}

// Tracks returns the current library contents, rescanning the directory
// when the last scan has gone stale. A failed rescan falls back to the
// previous contents.
func (l *Library) Tracks() ([]Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tracks != nil && time.Since(l.refreshed) < l.refresh {
		return slices.Clone(l.tracks), nil
	}

	tracks, err := l.scan()
	if err != nil {
		if l.tracks != nil {
			logger.Warn("Failed to refresh music library", "error", err)
			return slices.Clone(l.tracks), nil
		}
		return nil, err
	}

	l.tracks = tracks
	l.refreshed = time.Now()
	return slices.Clone(l.tracks), nil
}

func (l *Library) scan() ([]Track, error) {
	tracks := []Track{}
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !slices.Contains(l.extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		tracks = append(tracks, Track{
			Path:  path,
			Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan music directory: %w", err)
	}
	return tracks, nil
}

// Find picks the track best matching the requested title: exact title
// first, then substring and fuzzy matches, and a random track when nothing
// comes close or no title was given.
func (l *Library) Find(title string) (Track, error) {
	tracks, err := l.Tracks()
	if err != nil {
		return Track{}, err
	}
	if len(tracks) == 0 {
		return Track{}, fmt.Errorf("no playable tracks under %s", l.dir)
	}

	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return tracks[rand.IntN(len(tracks))], nil
	}

	best := -1
	bestScore := 0.0
	for i, track := range tracks {
		have := strings.ToLower(track.Title)
		if have == want {
			return track, nil
		}

		score := matchRatio(want, have)
		if strings.Contains(have, want) && score < 0.8 {
			score = 0.8
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= matchThreshold {
		return tracks[best], nil
	}

	// Nothing close enough, surprise the listener instead of failing.
	return tracks[rand.IntN(len(tracks))], nil
}

// Queue enqueues one utterance that announces the track and then plays the
// file. It returns the track that was queued.
func (l *Library) Queue(target Enqueuer, title string) (Track, error) {
	track, err := l.Find(title)
	if err != nil {
		return Track{}, err
	}

	id := uuid.NewString()
	target.Enqueue(delivery.TextMessage{UtteranceID: id, Sentence: delivery.SentenceFirst, Content: delivery.ContentAction})
	target.Enqueue(delivery.TextMessage{UtteranceID: id, Sentence: delivery.SentenceMiddle, Content: delivery.ContentText, Text: "Now playing " + track.Title + "."})
	target.Enqueue(delivery.TextMessage{UtteranceID: id, Sentence: delivery.SentenceMiddle, Content: delivery.ContentFile, FilePath: track.Path, Text: track.Title})
	target.Enqueue(delivery.TextMessage{UtteranceID: id, Sentence: delivery.SentenceLast, Content: delivery.ContentAction})
	return track, nil
}

// Tool exposes the library as a callable function for an assistant.
func (l *Library) Tool(target Enqueuer) tools.Tool {
	return tools.New("play_music", "Play a song from the local music library. Might be referred to as 'putting something on'",
		func(parameters struct {
			Title string `json:"title" jsonschema:"description=Song title to look for. Leave empty for a random pick"`
		}) (string, error) {
			track, err := l.Queue(target, parameters.Title)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Success, %s is queued. Respond with a very short phrase", track.Title), nil
		})
}

// matchRatio scores how much of two titles lines up, 0 to 1, as twice the
// longest common subsequence over the combined length.
func matchRatio(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}

	prev := make([]int, len(br)+1)
	for i := range ar {
		row := make([]int, len(br)+1)
		for j := range br {
			switch {
			case ar[i] == br[j]:
				row[j+1] = prev[j] + 1
			case prev[j+1] >= row[j]:
				row[j+1] = prev[j+1]
			default:
				row[j+1] = row[j]
			}
		}
		prev = row
	}

	return 2 * float64(prev[len(br)]) / float64(len(ar)+len(br))
}
