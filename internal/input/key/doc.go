// Package key provides key event types and parsing for keystrokes that
// textstorm observes on host surfaces and synthesizes into them.
//
//   - Key: identifies a named key (Enter, Tab, Backspace, arrows) or KeyRune
//   - Modifier: Ctrl, Alt, Shift, Meta
//   - Event: a single key press with modifiers
//
// # Key Specifications
//
// Specifications used by the {key:...} template command are written as:
//
//   - Simple keys: "a", "Enter", "Tab", "Escape"
//   - With modifiers: "Ctrl+A", "Shift+Tab"
//   - Vim-style: "<C-a>", "<CR>", "<S-Tab>"
//
// Events also know their DOM KeyboardEvent key and code names, which the
// synthetic keystroke tier and the CDP surface need.
package key
