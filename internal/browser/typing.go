package browser

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Typing cadence bounds. Behavioral anti-automation scoring watches
// inter-key timing; uniform machine-speed input is the strongest
// signal, so every key gets its own delay and roughly one key in eight
// gets a longer hesitation.
const (
	keyDelayMin   = 50 * time.Millisecond
	keyDelayMax   = 120 * time.Millisecond
	microPauseMin = 250 * time.Millisecond
	microPauseMax = 700 * time.Millisecond
)

// humanType clicks the field, clears it, and types text one rune at a
// time with jittered delays.
func humanType(ctx context.Context, el *rod.Element, text string) error {
	if err := clearField(ctx, el); err != nil {
		return err
	}
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return err
		}
		if err := sleepCtx(ctx, keyDelay()); err != nil {
			return err
		}
	}
	return nil
}

// clearField focuses the field and removes any existing content the way
// a person would: select all, backspace.
func clearField(ctx context.Context, el *rod.Element) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	if err := el.Type(input.Backspace); err != nil {
		return err
	}
	return sleepCtx(ctx, keyDelay())
}

func keyDelay() time.Duration {
	d := keyDelayMin + time.Duration(rand.Int64N(int64(keyDelayMax-keyDelayMin)))
	if rand.IntN(8) == 0 {
		d += microPauseMin + time.Duration(rand.Int64N(int64(microPauseMax-microPauseMin)))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
