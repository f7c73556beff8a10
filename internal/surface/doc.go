// Package surface abstracts the editable fields text expansion runs against.
//
// An Element is anything with text and a caret: a browser <input>, a
// contenteditable region driven over CDP, a terminal field, or the
// in-memory DOM used by tests. Everything beyond reading is an optional
// capability expressed as a small interface (ValueSetter, Selector,
// CommandExecutor, Keyboard, ...). The replacement engine type-asserts for
// the capabilities each tier needs and skips the tier when one is missing.
//
// The editor Kind of an element is resolved once from its Profile by
// Classify and cached per element ID by a Prober.
package surface
