// Package console is a line-driven stand-in for a game server. It keeps a
// player roster and a world clock, runs a handful of commands and prints
// broadcasts to its output. Roster changes are typed on its input:
//
//	join <name>                 a player logs in
//	leave <name>                a player logs out
//	say <name> <text>           a player chats
//	die <name> <message>        a player dies
//	kill <mob> <message>        a non-player entity dies
//	advance <name> <title>[|<description>]
//	op <name> / deop <name>     toggle privileges
//	/<command>                  run a command as the console
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/chatbridge/bridge"
	"github.com/vovakirdan/chatbridge/display"
	"github.com/vovakirdan/chatbridge/schema"
)

const (
	// TickInterval is the nominal duration of one world tick.
	TickInterval = 50 * time.Millisecond
	// MaxPlayers is reported by list and in the status blob.
	MaxPlayers = 20

	commandSource = "Chat Bridge"
)

// Player is a roster entry.
type Player struct {
	name string
	id   string
}

// NewPlayer derives a stable offline id from name.
func NewPlayer(name string) Player {
	return Player{name: name, id: uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+name)).String()}
}

func (p Player) DisplayName() string { return p.name }
func (p Player) ID() string          { return p.id }

// Mob is a non-player entity; its deaths are never relayed.
type Mob struct{ Name string }

func (m Mob) DisplayName() string { return m.Name }

// Host implements bridge.Server, bridge.EventSource and bridge.Snapshotter.
type Host struct {
	out  io.Writer
	log  *slog.Logger
	motd string

	mu        sync.Mutex
	roster    []Player
	ops       map[string]bool
	worldTime int64
	avgTick   time.Duration
	lastTick  time.Time

	outMu sync.Mutex

	subMu       sync.Mutex
	chat        []func(bridge.ChatEvent)
	join        []func(bridge.Player)
	leave       []func(bridge.Player)
	advancement []func(bridge.AdvancementEvent)
	death       []func(bridge.DeathEvent)
}

var (
	_ bridge.Server      = (*Host)(nil)
	_ bridge.EventSource = (*Host)(nil)
	_ bridge.Snapshotter = (*Host)(nil)
)

// New returns a host printing to out.
func New(out io.Writer, log *slog.Logger) *Host {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Host{
		out:     out,
		log:     log,
		motd:    "A Chat Bridge console server",
		ops:     make(map[string]bool),
		avgTick: TickInterval,
	}
}

// Run advances the world clock and applies input lines until ctx is done or
// in is exhausted.
func (h *Host) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.tickLoop(ctx)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := h.Apply(line); err != nil {
				h.printf("%v\n", err)
			}
		}
	}
}

func (h *Host) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.tick(now)
		}
	}
}

func (h *Host) tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.worldTime++
	if !h.lastTick.IsZero() {
		// moving average over roughly the last 100 ticks
		h.avgTick += (now.Sub(h.lastTick) - h.avgTick) / 100
	}
	h.lastTick = now
}

// Apply runs one input line.
func (h *Host) Apply(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if cmd, ok := strings.CutPrefix(line, "/"); ok {
		h.Execute(cmd, printSink{h})
		return nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	name, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if name == "" {
		return fmt.Errorf("usage: %s <name> ...", verb)
	}
	switch verb {
	case "join":
		p, added := h.add(name)
		if !added {
			return fmt.Errorf("%s is already online", name)
		}
		h.Broadcast(display.Text(name + " joined the game"))
		h.eachJoin(p)
	case "leave":
		p, ok := h.remove(name)
		if !ok {
			return fmt.Errorf("%s is not online", name)
		}
		h.Broadcast(display.Text(name + " left the game"))
		h.eachLeave(p)
	case "say":
		p, ok := h.lookup(name)
		if !ok {
			return fmt.Errorf("%s is not online", name)
		}
		h.printf("<%s> %s\n", name, arg)
		h.eachChat(bridge.ChatEvent{Player: p, RawText: arg})
	case "die":
		p, ok := h.lookup(name)
		if !ok {
			return fmt.Errorf("%s is not online", name)
		}
		msg := arg
		if msg == "" {
			msg = name + " died"
		}
		h.Broadcast(display.Text(msg))
		h.eachDeath(bridge.DeathEvent{Entity: p, DeathMessage: msg})
	case "kill":
		h.eachDeath(bridge.DeathEvent{Entity: Mob{Name: name}, DeathMessage: arg})
	case "advance":
		p, ok := h.lookup(name)
		if !ok {
			return fmt.Errorf("%s is not online", name)
		}
		title, desc, _ := strings.Cut(arg, "|")
		title = strings.TrimSpace(title)
		announce := title != ""
		if announce {
			h.Broadcast(display.Text(name + " has made the advancement [" + title + "]"))
		}
		h.eachAdvancement(bridge.AdvancementEvent{
			Player:         p,
			Title:          title,
			Description:    strings.TrimSpace(desc),
			AnnounceToChat: announce,
		})
	case "op", "deop":
		p, ok := h.lookup(name)
		if !ok {
			return fmt.Errorf("%s is not online", name)
		}
		h.mu.Lock()
		h.ops[p.id] = verb == "op"
		h.mu.Unlock()
	default:
		return fmt.Errorf("unknown input %q", verb)
	}
	return nil
}

func (h *Host) add(name string) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.roster {
		if p.name == name {
			return p, false
		}
	}
	p := NewPlayer(name)
	h.roster = append(h.roster, p)
	return p, true
}

func (h *Host) remove(name string) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.roster {
		if p.name == name {
			h.roster = slices.Delete(h.roster, i, i+1)
			return p, true
		}
	}
	return Player{}, false
}

func (h *Host) lookup(name string) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.roster {
		if p.name == name {
			return p, true
		}
	}
	return Player{}, false
}

func (h *Host) Players() []bridge.Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bridge.Player, 0, len(h.roster))
	for _, p := range h.roster {
		out = append(out, p)
	}
	return out
}

func (h *Host) IsPrivileged(p bridge.Player) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ops[p.ID()]
}

func (h *Host) AverageTickTime() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.avgTick
}

func (h *Host) WorldTime() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.worldTime
}

func (h *Host) Status() json.RawMessage {
	h.mu.Lock()
	online := len(h.roster)
	h.mu.Unlock()
	return h.status(online)
}

func (h *Host) status(online int) json.RawMessage {
	data, err := json.Marshal(map[string]any{
		"description": map[string]string{"text": h.motd},
		"players":     map[string]int{"max": MaxPlayers, "online": online},
		"version":     map[string]string{"name": "console"},
	})
	if err != nil {
		h.log.Error("encoding status failed", "error", err)
		return nil
	}
	return data
}

// Snapshot captures the roster, clock and status under one lock.
func (h *Host) Snapshot() bridge.Snapshot {
	h.mu.Lock()
	users := make([]schema.User, 0, len(h.roster))
	for _, p := range h.roster {
		users = append(users, schema.User{DisplayName: p.name, ID: p.id, IsPrivileged: h.ops[p.id]})
	}
	snap := bridge.Snapshot{
		Users:           users,
		AverageTickTime: h.avgTick,
		WorldTime:       h.worldTime,
	}
	h.mu.Unlock()
	snap.Status = h.status(len(users))
	return snap
}

// Broadcast prints c as plain text.
func (h *Host) Broadcast(c display.Component) {
	h.printf("%s\n", c.Plain())
}

// Execute runs command as the privileged "Chat Bridge" source. Outcomes go
// to sink; some commands produce none.
func (h *Host) Execute(command string, sink bridge.CommandSink) {
	h.log.Info("executing command", "source", commandSource, "command", command)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		outcome(sink, false, "Unknown or incomplete command")
		return
	}
	switch fields[0] {
	case "list":
		names := make([]string, 0)
		for _, p := range h.Players() {
			names = append(names, p.DisplayName())
		}
		outcome(sink, true, fmt.Sprintf("There are %d of a max of %d players online: %s",
			len(names), MaxPlayers, strings.Join(names, ", ")))
	case "say":
		if len(fields) < 2 {
			outcome(sink, false, "Incorrect argument for command")
			return
		}
		_, text, _ := strings.Cut(strings.TrimSpace(command), " ")
		text = strings.TrimSpace(text)
		h.Broadcast(display.Text("[" + commandSource + "] " + text))
	case "time":
		outcome(sink, true, fmt.Sprintf("The time is %d", h.WorldTime()))
	case "tp":
		if len(fields) != 4 {
			outcome(sink, false, "Incorrect argument for command")
			return
		}
		coords := make([]string, 3)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				outcome(sink, false, "Expected a number: "+f)
				return
			}
			coords[i] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		outcome(sink, true, fmt.Sprintf("Teleported %s to %s", commandSource, strings.Join(coords, ", ")))
	default:
		outcome(sink, false, "Unknown or incomplete command, see below for error")
	}
}

func outcome(sink bridge.CommandSink, success bool, text string) {
	if success && !sink.AcceptsSuccess() {
		return
	}
	if !success && !sink.AcceptsFailure() {
		return
	}
	sink.SendOutcome(text)
}

func (h *Host) printf(format string, args ...any) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}

// printSink shows outcomes of commands typed on the console itself.
type printSink struct{ h *Host }

func (s printSink) SendOutcome(text string) { s.h.printf("%s\n", text) }
func (s printSink) AcceptsSuccess() bool    { return true }
func (s printSink) AcceptsFailure() bool    { return true }
