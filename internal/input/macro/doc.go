// Package macro replays post-insertion keyboard actions.
//
// A snippet template can embed key presses and pauses ({enter}, {tab},
// {key:Ctrl+b}, {wait:200}). The command resolver turns those into a
// Macro, an ordered list of Actions, and the replacement engine hands the
// Macro to a Player once the expanded text has landed.
//
// Example:
//
//	m := macro.Macro{macro.Press(key.MustParse("Enter")), macro.Wait(50 * time.Millisecond)}
//	player := macro.NewPlayer()
//	err := player.Play(ctx, m, func(ctx context.Context, ev key.Event) error {
//	    return kb.Press(ctx, ev)
//	})
//
// # Thread Safety
//
// A Player runs one macro at a time; Play returns an error if called while
// another playback is in progress.
package macro
