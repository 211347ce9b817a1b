// Package main provides the interactive console player.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/hmdyt/melodio/internal/api/client"
	"github.com/hmdyt/melodio/internal/app/player"
	"github.com/hmdyt/melodio/internal/app/playlist"
	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/domain/track"
	"github.com/hmdyt/melodio/internal/infra/logger"
	"github.com/hmdyt/melodio/internal/infra/prefs"
)

var (
	app     = kingpin.New("melodio", "melodio console player")
	server  = app.Flag("server", "API server address").Default("http://localhost:3001").String()
	dataDir = app.Flag("data-dir", "Directory for playlists and preferences").Default("./data").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
)

// consoleSink prints sink commands instead of driving real audio output.
// Playback progress is simulated by the clock loop in run.
type consoleSink struct{}

func (consoleSink) Load(url string)         { fmt.Printf("♪ loading %s\n", url) }
func (consoleSink) Play()                   {}
func (consoleSink) Pause()                  {}
func (consoleSink) Seek(seconds float64)    {}
func (consoleSink) SetVolume(level float64) {}
func (consoleSink) SetMuted(muted bool)     {}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prefsPath := filepath.Join(*dataDir, "preferences.json")
	preferences, err := prefs.Load(prefsPath)
	if err != nil {
		zlog.Warn().Err(err).Msg("Failed to load preferences, using defaults")
		preferences = prefs.Default()
	}

	playlists, err := playlist.Open(filepath.Join(*dataDir, "playlists.json"))
	if err != nil {
		return fmt.Errorf("failed to open playlist store: %w", err)
	}

	api, err := client.New(client.Config{BaseURL: *server})
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	// Client-side resolution cache in front of the server's.
	store := resolver.New(api, resolver.Options{})

	engine := player.New(store, consoleSink{}, player.Options{
		Volume:   &preferences.Volume,
		Repeat:   player.ParseRepeatMode(preferences.RepeatMode),
		Shuffled: preferences.Shuffled,
	})

	go clockLoop(ctx, engine)

	fmt.Printf("melodio player connected to %s — type 'help' for commands\n", *server)
	p := &prompt{
		ctx:       ctx,
		api:       api,
		engine:    engine,
		playlists: playlists,
		prefsPath: prefsPath,
		prefs:     preferences,
	}
	p.loop()
	return nil
}

// clockLoop simulates audio playback: one second of wall time advances
// the position one second, firing end-of-track at the duration.
func clockLoop(ctx context.Context, engine *player.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := engine.Snapshot()
			if !s.IsPlaying || s.IsLoading || s.CurrentTrack == nil {
				continue
			}
			duration := s.Duration
			if duration == 0 {
				duration = float64(s.CurrentTrack.DurationSec)
				engine.OnLoadedMetadata(duration)
			}
			next := s.CurrentTime + 1
			if duration > 0 && next >= duration {
				engine.OnEnded()
			} else {
				engine.OnTimeUpdate(next)
			}
		}
	}
}

type prompt struct {
	ctx       context.Context
	api       *client.Client
	engine    *player.Engine
	playlists *playlist.Store
	prefsPath string
	prefs     prefs.Preferences

	// last listing shown to the user; play/add indexes refer into it
	results []track.Track
}

func (p *prompt) loop() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		if cmd == "quit" || cmd == "exit" {
			break
		}
		p.dispatch(cmd, args, strings.TrimSpace(strings.TrimPrefix(line, cmd)))

		if p.ctx.Err() != nil {
			break
		}
	}
	p.savePrefs()
	fmt.Println("bye")
}

func (p *prompt) dispatch(cmd string, args []string, rest string) {
	switch cmd {
	case "help":
		printHelp()
	case "search":
		p.search(rest)
	case "trending":
		p.trending()
	case "album", "remote":
		p.remotePlaylist(rest)
	case "play":
		p.play(args)
	case "add":
		p.add(args, false)
	case "next-add":
		p.add(args, true)
	case "queue":
		p.printQueue()
	case "remove":
		p.remove(args)
	case "clear":
		p.engine.ClearQueue()
	case "p", "pause":
		p.engine.TogglePlay()
		p.printStatus()
	case "n", "skip":
		p.engine.PlayNext()
	case "b", "prev":
		p.engine.PlayPrevious()
	case "shuffle":
		p.engine.ToggleShuffle()
		fmt.Printf("shuffle: %v\n", p.engine.Snapshot().Shuffled)
	case "repeat":
		p.engine.ToggleRepeat()
		fmt.Printf("repeat: %s\n", p.engine.Snapshot().Repeat)
	case "seek":
		p.seek(args)
	case "vol":
		p.volume(args)
	case "mute":
		p.engine.ToggleMute()
	case "status":
		p.printStatus()
	case "lyrics":
		p.lyrics()
	case "pl":
		p.playlistCmd(args)
	default:
		fmt.Printf("unknown command %q — type 'help'\n", cmd)
	}
}

func printHelp() {
	fmt.Print(`commands:
  search <query>        search the catalog
  trending              show trending tracks
  album <playlist-id>   show a remote playlist or album
  play [n]              play listing entry n (default 1), queueing the rest
  add <n>               append listing entry n to the queue
  next-add <n>          queue listing entry n to play next
  queue                 show the queue
  remove <n>            remove queue entry n
  clear                 clear the queue
  p                     toggle play/pause
  n / b                 next / previous track
  shuffle / repeat      toggle shuffle, cycle repeat mode
  seek <seconds>        seek within the current track
  vol <0-100>           set volume
  mute                  toggle mute
  status                show player state
  lyrics                show lyrics for the current track
  pl list               list local playlists
  pl create <name>      create a local playlist
  pl add <n>            add the current track to playlist n
  pl play <n>           play playlist n
  pl delete <n>         delete playlist n
  quit                  save preferences and exit
`)
}

func (p *prompt) search(query string) {
	if query == "" {
		fmt.Println("usage: search <query>")
		return
	}
	tracks, err := p.api.Search(p.ctx, query, "")
	if err != nil {
		fmt.Printf("search failed: %v\n", err)
		return
	}
	p.showListing(tracks)
}

func (p *prompt) trending() {
	tracks, err := p.api.Trending(p.ctx)
	if err != nil {
		fmt.Printf("trending failed: %v\n", err)
		return
	}
	p.showListing(tracks)
}

func (p *prompt) remotePlaylist(id string) {
	if id == "" {
		fmt.Println("usage: album <playlist-id>")
		return
	}
	pl, err := p.api.Playlist(p.ctx, id)
	if err != nil {
		fmt.Printf("playlist lookup failed: %v\n", err)
		return
	}
	fmt.Printf("%s — %s (%d tracks)\n", pl.Name, pl.Uploader, len(pl.Tracks))
	p.showListing(pl.Tracks)
}

func (p *prompt) showListing(tracks []track.Track) {
	if len(tracks) == 0 {
		fmt.Println("no results")
		return
	}
	p.results = tracks
	for i, t := range tracks {
		fmt.Printf("%3d. %s — %s [%s]\n", i+1, t.Title, t.ArtistName, formatDuration(t.DurationSec))
	}
}

func (p *prompt) play(args []string) {
	if len(p.results) == 0 {
		fmt.Println("nothing to play — search first")
		return
	}
	index := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(p.results) {
			fmt.Println("usage: play [n]")
			return
		}
		index = n - 1
	}
	p.engine.SetQueue(p.results, index)
}

func (p *prompt) add(args []string, next bool) {
	if len(args) == 0 {
		fmt.Println("usage: add <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(p.results) {
		fmt.Println("no such listing entry")
		return
	}
	t := p.results[n-1]
	if next {
		p.engine.InsertNext(t)
	} else {
		p.engine.Append(t)
	}
	fmt.Printf("queued: %s\n", t.Title)
}

func (p *prompt) remove(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: remove <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		fmt.Println("usage: remove <n>")
		return
	}
	p.engine.RemoveAt(n - 1)
}

func (p *prompt) printQueue() {
	tracks := p.engine.QueueTracks()
	if len(tracks) == 0 {
		fmt.Println("queue is empty")
		return
	}
	cursor := p.engine.QueueCursor()
	for i, t := range tracks {
		marker := "  "
		if i == cursor {
			marker = "▶ "
		}
		fmt.Printf("%s%3d. %s — %s\n", marker, i+1, t.Title, t.ArtistName)
	}
}

func (p *prompt) seek(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: seek <seconds>")
		return
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil || seconds < 0 {
		fmt.Println("usage: seek <seconds>")
		return
	}
	p.engine.Seek(seconds)
}

func (p *prompt) volume(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: vol <0-100>")
		return
	}
	percent, err := strconv.Atoi(args[0])
	if err != nil || percent < 0 || percent > 100 {
		fmt.Println("usage: vol <0-100>")
		return
	}
	p.engine.SetVolume(float64(percent) / 100)
}

func (p *prompt) printStatus() {
	s := p.engine.Snapshot()
	switch s.State() {
	case player.StateEmpty:
		fmt.Println("nothing playing")
		return
	case player.StateError:
		fmt.Printf("error: %s\n", s.Err)
		return
	case player.StateLoading:
		fmt.Printf("loading %s...\n", s.CurrentTrack.Title)
		return
	}

	verb := "paused"
	if s.IsPlaying {
		verb = "playing"
	}
	fmt.Printf("%s: %s — %s  %s / %s\n", verb,
		s.CurrentTrack.Title, s.CurrentTrack.ArtistName,
		formatDuration(int(s.CurrentTime)), formatDuration(int(s.Duration)))
	fmt.Printf("volume %d%%  shuffle %v  repeat %s\n",
		int(s.Volume*100), s.Shuffled, s.Repeat)
}

func (p *prompt) lyrics() {
	s := p.engine.Snapshot()
	if s.CurrentTrack == nil {
		fmt.Println("nothing playing")
		return
	}
	l, ok, err := p.api.Lyrics(p.ctx, s.CurrentTrack.Title, s.CurrentTrack.ArtistName, s.CurrentTrack.DurationSec)
	if err != nil {
		fmt.Printf("lyrics lookup failed: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("no lyrics found")
		return
	}
	if l.PlainLyrics != "" {
		fmt.Println(l.PlainLyrics)
	} else {
		fmt.Println(l.SyncedLyrics)
	}
}

func (p *prompt) playlistCmd(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: pl list|create|add|play|delete")
		return
	}
	switch args[0] {
	case "list":
		all := p.playlists.List()
		if len(all) == 0 {
			fmt.Println("no playlists")
			return
		}
		for i, pl := range all {
			fmt.Printf("%3d. %s (%d tracks)\n", i+1, pl.Name, len(pl.Tracks))
		}
	case "create":
		if len(args) < 2 {
			fmt.Println("usage: pl create <name>")
			return
		}
		name := strings.Join(args[1:], " ")
		if _, err := p.playlists.Create(name, ""); err != nil {
			fmt.Printf("create failed: %v\n", err)
			return
		}
		fmt.Printf("created playlist %q\n", name)
	case "add":
		pl, ok := p.playlistAt(args[1:])
		if !ok {
			return
		}
		s := p.engine.Snapshot()
		if s.CurrentTrack == nil {
			fmt.Println("nothing playing")
			return
		}
		if err := p.playlists.AddTrack(pl.ID, *s.CurrentTrack); err != nil {
			fmt.Printf("add failed: %v\n", err)
			return
		}
		fmt.Printf("added %s to %s\n", s.CurrentTrack.Title, pl.Name)
	case "play":
		pl, ok := p.playlistAt(args[1:])
		if !ok {
			return
		}
		if len(pl.Tracks) == 0 {
			fmt.Println("playlist is empty")
			return
		}
		p.results = pl.Tracks
		p.engine.SetQueue(pl.Tracks, 0)
	case "delete":
		pl, ok := p.playlistAt(args[1:])
		if !ok {
			return
		}
		if err := p.playlists.Delete(pl.ID); err != nil {
			fmt.Printf("delete failed: %v\n", err)
			return
		}
		fmt.Printf("deleted %s\n", pl.Name)
	default:
		fmt.Println("usage: pl list|create|add|play|delete")
	}
}

func (p *prompt) playlistAt(args []string) (playlist.Playlist, bool) {
	if len(args) == 0 {
		fmt.Println("playlist number required")
		return playlist.Playlist{}, false
	}
	n, err := strconv.Atoi(args[0])
	all := p.playlists.List()
	if err != nil || n < 1 || n > len(all) {
		fmt.Println("no such playlist")
		return playlist.Playlist{}, false
	}
	return all[n-1], true
}

func (p *prompt) savePrefs() {
	s := p.engine.Snapshot()
	p.prefs.Volume = s.Volume
	p.prefs.RepeatMode = string(s.Repeat)
	p.prefs.Shuffled = s.Shuffled
	if err := prefs.Save(p.prefsPath, p.prefs); err != nil {
		zlog.Warn().Err(err).Msg("Failed to save preferences")
	}
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
