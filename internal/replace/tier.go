package replace

import (
	"context"

	"github.com/dshills/textstorm/internal/surface"
)

// Tier identifies one replacement strategy.
type Tier uint8

const (
	TierGoogleDocs Tier = iota
	TierCKEditor
	TierDirect
	TierExecCommand
	TierAggressive
	TierClipboard
	TierKeystrokes
)

var tierNames = [...]string{
	TierGoogleDocs:  "docs",
	TierCKEditor:    "ckeditor",
	TierDirect:      "direct",
	TierExecCommand: "exec-command",
	TierAggressive:  "aggressive",
	TierClipboard:   "clipboard",
	TierKeystrokes:  "keystrokes",
}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "unknown"
}

// IsAdapter reports whether t is an editor-specific adapter.
func (t Tier) IsAdapter() bool {
	return t == TierGoogleDocs || t == TierCKEditor
}

// TierFunc attempts one strategy. A nil error means the tier believes it
// succeeded; the engine still verifies the result.
type TierFunc func(ctx context.Context, el surface.Element, trigger, expansion string) error

// Plan is the ordered list of tiers for one editor kind.
type Plan []Tier

// DefaultPlans maps each editor kind to the tiers tried for it.
func DefaultPlans() map[surface.Kind]Plan {
	return map[surface.Kind]Plan{
		surface.KindInput:           {TierDirect, TierAggressive, TierClipboard, TierKeystrokes},
		surface.KindTextarea:        {TierDirect, TierAggressive, TierClipboard, TierKeystrokes},
		surface.KindControlled:      {TierDirect, TierAggressive, TierClipboard, TierKeystrokes},
		surface.KindContentEditable: {TierExecCommand, TierClipboard, TierKeystrokes},
		surface.KindGoogleDocs:      {TierGoogleDocs, TierClipboard, TierKeystrokes},
		surface.KindCKEditor:        {TierCKEditor, TierExecCommand, TierClipboard, TierKeystrokes},
		surface.KindUnknown:         {TierDirect, TierExecCommand, TierAggressive, TierClipboard, TierKeystrokes},
	}
}
