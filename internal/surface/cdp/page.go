// Package cdp attaches textstorm to Chrome pages over the DevTools
// protocol. A script injected into each page reports editable-element
// activity through a runtime binding and exposes the helpers the
// element capabilities call.
package cdp

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/surface"
)

//go:embed agent.js
var agentJS string

const bindingName = "__textstormBinding"

// signalBuffer is the capacity of a page's signal channel.
const signalBuffer = 256

// Page is one attached browser tab. It implements surface.Host.
type Page struct {
	page   *rod.Page
	host   string
	logger *logging.Logger

	signals chan surface.Signal
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	elements map[string]*Element
}

// Attach installs the binding and the agent script on page and starts
// forwarding its signals. Signals stop when ctx is done or the page
// closes.
func Attach(ctx context.Context, page *rod.Page, logger *logging.Logger) (*Page, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	p := &Page{
		page:     page,
		signals:  make(chan surface.Signal, signalBuffer),
		done:     make(chan struct{}),
		elements: make(map[string]*Element),
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("cdp: page info: %w", err)
	}
	if u, err := url.Parse(info.URL); err == nil {
		p.host = u.Hostname()
	}
	p.logger = logger.WithComponent("cdp").WithField("host", p.host)

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return nil, fmt.Errorf("cdp: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument("(" + agentJS + ")()"); err != nil {
		return nil, fmt.Errorf("cdp: register agent: %w", err)
	}
	if _, err := page.Context(ctx).Eval(agentJS); err != nil {
		return nil, fmt.Errorf("cdp: inject agent: %w", err)
	}

	go p.listen(ctx)
	return p, nil
}

// Name implements surface.Host.
func (p *Page) Name() string { return p.host }

// Signals implements surface.Host.
func (p *Page) Signals() <-chan surface.Signal { return p.signals }

// Done is closed once the page stops producing signals.
func (p *Page) Done() <-chan struct{} { return p.done }

// Element returns the handle for an agent-assigned id.
func (p *Page) Element(id string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[id]
	if !ok {
		el = &Element{page: p, id: id}
		p.elements[id] = el
	}
	return el
}

func (p *Page) forget(id string) {
	p.mu.Lock()
	delete(p.elements, id)
	p.mu.Unlock()
}

// listen forwards binding calls until ctx is done or the target goes away.
func (p *Page) listen(ctx context.Context) {
	defer p.once.Do(func() {
		close(p.signals)
		close(p.done)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			p.dispatch(e.Payload)
		},
		func(e *proto.TargetTargetDestroyed) bool {
			return e.TargetID == p.page.TargetID
		},
		func(e *proto.InspectorDetached) bool {
			return true
		},
	)
	wait()
	p.logger.Debug("page detached")
}

func (p *Page) dispatch(payload string) {
	msg, err := parseMessage(payload)
	if err != nil {
		p.logger.Debug("dropping binding call: %v", err)
		return
	}
	el := p.Element(msg.ID)
	if msg.Type == surface.SignalRemoved {
		p.forget(msg.ID)
	}
	select {
	case p.signals <- surface.Signal{Type: msg.Type, Element: el, Key: msg.Key}:
	default:
		p.logger.Warn("signal buffer full, dropping %s for %s", msg.Type, msg.ID)
	}
}

// call runs one agent helper against the page and returns its result
// decoded from JSON. A null result means the element is gone.
func (p *Page) call(ctx context.Context, helper string, args ...any) (gjson.Result, error) {
	js := fmt.Sprintf(`async (...args) => JSON.stringify(await window.__textstorm.%s(...args))`, helper)
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return gjson.Result{}, err
		}
		return gjson.Result{}, fmt.Errorf("cdp: %s: %w", helper, err)
	}
	out := gjson.Parse(res.Value.Str())
	if out.Type == gjson.Null {
		return out, surface.ErrDetached
	}
	return out, nil
}
