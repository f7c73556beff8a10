// Package replace performs the text surgery that turns a typed trigger into
// its expansion.
//
// Host editors are uncooperative in different ways, so the Engine walks an
// ordered list of strategies (tiers) chosen by the element's surface.Kind:
//
//	docs / ckeditor  delete and insert through the editor's own model
//	direct           splice the value and dispatch input
//	exec-command     select the trigger, execCommand delete + insertText
//	aggressive       native setter, tracker reset, input/change/keyup
//	clipboard        write the expansion to the clipboard and paste
//	keystrokes       one Backspace per trigger rune, then type
//
// A tier that reports success is only trusted after the element's text is
// re-read and verified. If every tier fails the engine waits RetryDelay
// and makes one more pass, unless the element has left the document.
//
// Replace never panics and never returns an error; the boolean result is
// the only thing that crosses the package boundary.
package replace
