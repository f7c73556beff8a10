// Package expand drives text expansion for one host page.
//
// A Controller receives input, keydown and removal signals from a
// surface.Host, queues them in arrival order and processes them on a
// single worker goroutine. For each signal it extracts the text before
// the caret, looks for a trigger at its end, applies the snippet's word
// boundary rule, takes the element lock and hands the resolved expansion
// to the replacement engine.
//
// Rich editors (Google Docs, CKEditor) do not report usable input events,
// so the controller keeps a per-element buffer of typed characters fed by
// keydown signals and matches against that instead.
//
// Form prompts, LLM completions and the engine's own delays suspend the
// worker. The element is checked for detachment after every suspension
// and an expansion whose element has gone is dropped without error.
package expand
