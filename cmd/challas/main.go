// Command challas is a headless Challas Aath participant. It connects to a
// relay, creates or joins a room and, with -autoplay, rolls and moves on its
// own turns until the game is decided.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"challasaath/internal/board"
	"challasaath/internal/client"
	"challasaath/internal/config"
	"challasaath/internal/engine"
	"challasaath/internal/game"
	"challasaath/internal/logging"
)

var errGameOver = errors.New("game over")

type mode int

const (
	modeCreate mode = iota
	modeJoin
	modeQuick
)

type player struct {
	mode     mode
	code     string
	autoplay bool
	entered  bool

	session *client.Session
	match   *game.Match
	events  chan client.Event
	changes chan game.Change
	log     zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	relayURL := flag.String("relay", cfg.RelayURL, "relay websocket url")
	name := flag.String("name", "", "nickname")
	join := flag.String("join", "", "join the room with this code")
	quick := flag.Bool("quick", false, "find a quick match")
	players := flag.Int("players", cfg.RoomCapacity, "room capacity when creating, 2 to 4")
	autoplay := flag.Bool("autoplay", true, "roll and move automatically")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	logging.Debug = *debug
	logging.Setup(cfg.LogLevel, true)

	p := &player{
		code:     *join,
		autoplay: *autoplay,
		events:   make(chan client.Event, 64),
		changes:  make(chan game.Change, 256),
		log:      logging.For("cli"),
	}
	switch {
	case *join != "":
		p.mode = modeJoin
	case *quick:
		p.mode = modeQuick
	}

	opts := client.OptionsFromConfig(cfg, *name, client.Websocket(*relayURL))
	opts.Capacity = *players
	opts.OnEvent = p.onEvent
	p.session = client.New(opts)
	p.match = game.New(p.session, game.Options{
		Palette:      cfg.Palette,
		AutoAdvance:  true,
		EnforceTurns: true,
		OnChange:     p.onChange,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.session.Run(gctx) })
	g.Go(func() error { return p.match.Run(gctx, cfg.SyncInterval) })
	g.Go(func() error {
		defer p.session.Close()
		return p.loop(gctx)
	})
	err = g.Wait()
	p.printStandings()
	if err != nil && !errors.Is(err, errGameOver) {
		log.Error().Err(err).Msg("challas")
		os.Exit(1)
	}
}

// onEvent runs on the session's delivery path; the match sees every event
// first and the control loop gets a copy.
func (p *player) onEvent(ev client.Event) {
	p.match.Handle(ev)
	select {
	case p.events <- ev:
	default:
		p.log.Warn().Str("event", ev.Kind.String()).Msg("control loop lagging, event dropped")
	}
}

func (p *player) onChange(c game.Change) {
	select {
	case p.changes <- c:
	default:
	}
}

func (p *player) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			if err := p.handleEvent(ev); err != nil {
				return err
			}
		case c := <-p.changes:
			if err := p.handleChange(c); err != nil {
				return err
			}
		}
	}
}

func (p *player) handleEvent(ev client.Event) error {
	s := p.session
	switch ev.Kind {
	case client.EventStateChanged:
		p.log.Debug().Str("state", ev.State.String()).Msg("state")
		switch ev.State {
		case client.InLobby:
			if !p.entered {
				p.entered = true
				return p.enter()
			}
		case client.Disconnected:
			p.entered = false
		}
	case client.EventJoined:
		fmt.Printf("joined room %s as player %d (%d/%d)\n", ev.Room.Code, s.Slot()+1, len(ev.Room.Players), ev.Room.MaxPlayers)
		p.maybeStart()
	case client.EventPlayerEntered:
		fmt.Printf("%s entered (%d players)\n", ev.Player.Nickname, ev.Count)
		p.maybeStart()
	case client.EventPlayerLeft:
		fmt.Printf("%s left (%d players)\n", ev.Player.Nickname, ev.Count)
	case client.EventMasterChanged:
		p.log.Info().Int("master", ev.Master).Msg("authority moved")
		p.maybeStart()
	case client.EventJoinFailed:
		return fmt.Errorf("join failed: %w", ev.Failure)
	case client.EventCreateFailed:
		return fmt.Errorf("create failed: %w", ev.Failure)
	case client.EventQuickMatchTimeout:
		fmt.Println("no opponent found, giving up")
		return errGameOver
	case client.EventGameStarted:
		fmt.Printf("game started with %d players\n", len(ev.Room.Players))
		p.playIfMyTurn()
	case client.EventReturnedToLobby:
		fmt.Println("not enough players left, back in the lobby")
		return errGameOver
	case client.EventError:
		p.log.Warn().Err(ev.Failure).Msg("relay error")
	}
	return nil
}

// enter performs the requested room action once the lobby is reached.
func (p *player) enter() error {
	s := p.session
	switch p.mode {
	case modeJoin:
		return s.JoinRoom(p.code)
	case modeQuick:
		fmt.Println("searching for a quick match")
		return s.StartQuickMatch()
	default:
		code, err := s.CreateRoom()
		if err != nil {
			return err
		}
		fmt.Printf("created room %s, share this code\n", code)
		return nil
	}
}

func (p *player) maybeStart() {
	s := p.session
	if !s.IsMaster() || s.PlayerCount() < s.MaxPlayers() || p.match.Started() {
		return
	}
	if err := s.StartGame(); err != nil {
		p.log.Debug().Err(err).Msg("start game")
	}
}

func (p *player) handleChange(c game.Change) error {
	switch c.Kind {
	case game.ChangeCaptured:
		fmt.Printf("%s captured by %s at cell %d\n", c.Piece, c.By, c.Cell)
	case game.ChangeScored:
		fmt.Printf("%s reached the center\n", c.Piece)
	case game.ChangeScore:
		if p.decided() {
			return errGameOver
		}
	case game.ChangeTurn:
		p.playIfMyTurn()
	}
	return nil
}

// decided reports whether every player but one has brought all pieces home.
func (p *player) decided() bool {
	st := p.match.Standings()
	finished := 0
	for _, s := range st {
		if s.Finish > 0 {
			finished++
		}
	}
	return len(st) > 1 && finished >= len(st)-1
}

func (p *player) playIfMyTurn() {
	if !p.autoplay || !p.match.Started() || p.match.Turn().Current != p.session.Slot() {
		return
	}
	roll, err := p.match.Roll()
	if err != nil {
		p.log.Debug().Err(err).Msg("roll")
		return
	}
	fmt.Printf("rolled %d %v\n", roll.Value, roll.Shells)
	slot := p.session.Slot()
	for i := 0; i < board.PiecesPerPlayer; i++ {
		if err := p.match.Move(engine.PieceID{Player: slot, Slot: i}); err == nil {
			return
		}
	}
	fmt.Println("no piece can move, passing")
	if err := p.match.Pass(); err != nil {
		p.log.Warn().Err(err).Msg("pass")
	}
}

func (p *player) printStandings() {
	st := p.match.Standings()
	if len(st) == 0 {
		return
	}
	fmt.Println("standings:")
	for _, s := range st {
		place := "-"
		if s.Finish > 0 {
			place = fmt.Sprint(s.Finish)
		}
		fmt.Printf("  player %d  score %d  finish %s\n", s.Slot+1, s.Score, place)
	}
}
