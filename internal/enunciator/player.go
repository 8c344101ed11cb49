package enunciator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"enroute/internal/logging"
)

// Player plays a message and returns once the last clip or utterance ends.
type Player interface {
	Play(ctx context.Context, msg Message) error
}

type NopPlayer struct{}

func (NopPlayer) Play(ctx context.Context, msg Message) error { return ctx.Err() }

// ExecPlayer shells out to a clip player and a text-to-speech command. Clip
// paths are appended to Root, which may be a directory or a URL base.
type ExecPlayer struct {
	ClipCmd string
	TTSCmd  string
	Root    string
}

func NewExecPlayer(clipCmd, ttsCmd, root string) *ExecPlayer {
	return &ExecPlayer{ClipCmd: clipCmd, TTSCmd: ttsCmd, Root: strings.TrimRight(root, "/")}
}

func (p *ExecPlayer) Play(ctx context.Context, msg Message) error {
	// a missing chime or clip is skipped, not fatal
	if err := p.clip(ctx, msg.Chime()); err != nil {
		logging.Warn("chime failed", "error", err)
	}
	if len(msg.Audio) == 0 {
		return p.speak(ctx, Expand(msg.Text))
	}
	for _, c := range msg.Audio {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.clip(ctx, c); err != nil {
			logging.Warn("clip failed", "clip", c, "error", err)
		}
	}
	return ctx.Err()
}

func (p *ExecPlayer) clip(ctx context.Context, path string) error {
	return run(ctx, p.ClipCmd, p.Root+path)
}

func (p *ExecPlayer) speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return run(ctx, p.TTSCmd, text)
}

func run(ctx context.Context, command, arg string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return errors.New("no command configured")
	}
	args := append(fields[1:], arg)
	out, err := exec.CommandContext(ctx, fields[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", fields[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
