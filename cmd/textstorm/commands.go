package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/textstorm/internal/app"
	"github.com/dshills/textstorm/internal/expand"
	"github.com/dshills/textstorm/internal/form"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/store"
	"github.com/dshills/textstorm/internal/surface/cdp"
	"github.com/dshills/textstorm/internal/surface/memdom"
	"github.com/dshills/textstorm/internal/surface/term"
)

// attach expands in Chrome tabs until interrupted.
func attach(ctx context.Context, rt *app.Runtime, opts options, urls []string, logger *logging.Logger) error {
	browser, err := cdp.Connect(ctx, cdp.Options{
		ControlURL: opts.ControlURL,
		Headless:   opts.Headless,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer browser.Close()

	var pages []*cdp.Page
	if len(urls) == 0 {
		pages, err = browser.Pages(ctx)
		if err != nil {
			return err
		}
	}
	for _, u := range urls {
		p, err := browser.Open(ctx, u)
		if err != nil {
			return err
		}
		pages = append(pages, p)
	}
	if len(pages) == 0 {
		return fmt.Errorf("%w: no tabs to attach to", errUsage)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return rt.Run(gctx) })

	var tabs errgroup.Group
	for _, p := range pages {
		tabs.Go(func() error {
			return rt.Attach(gctx, p, expand.WithPrompter(p.Prompter()))
		})
	}
	g.Go(func() error {
		defer cancel()
		return tabs.Wait()
	})
	return g.Wait()
}

// play expands in a terminal text field until Escape.
func play(ctx context.Context, rt *app.Runtime, _ *logging.Logger) error {
	t, err := term.New(nil)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error {
		// Form values come from the field defaults.
		return rt.Attach(gctx, t, expand.WithPrompter(form.Static(nil)))
	})
	g.Go(func() error {
		select {
		case <-t.Ready():
			t.SetStatus(fmt.Sprintf("%d snippets  Esc quits", len(rt.Snippets())))
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return t.Run(gctx)
	})
	return g.Wait()
}

// check prints the text a textarea holds after typing args and letting
// the expansion run.
func check(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: check <text>", errUsage)
	}
	doc := memdom.NewDocument("textstorm.check")
	el := doc.Textarea(strings.Join(args, " "))

	c, err := rt.NewController(doc.Name(), expand.WithPrompter(form.Static(nil)))
	if err != nil {
		return err
	}
	defer rt.Detach(c)

	c.HandleInput(el)
	c.Close()
	if err := c.Start(ctx); err != nil {
		return err
	}
	c.Wait()
	_, err = fmt.Fprintln(out, el.Value())
	return err
}

// snippetCmd manages the snippet store.
func snippetCmd(ctx context.Context, st store.Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: snippet add|list|rm", errUsage)
	}
	switch args[0] {
	case "add":
		return snippetAdd(ctx, st, args[1:], out)
	case "list", "ls":
		return snippetList(ctx, st, out)
	case "rm", "remove":
		if len(args) != 2 {
			return fmt.Errorf("%w: snippet rm <trigger|id>", errUsage)
		}
		return snippetRemove(ctx, st, args[1], out)
	default:
		return fmt.Errorf("%w: unknown snippet command %q", errUsage, args[0])
	}
}

func snippetAdd(ctx context.Context, st store.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("snippet add", flag.ContinueOnError)
	fs.SetOutput(out)
	mode := fs.String("mode", string(snippet.ModeWord), "Trigger mode (word, word-both, anywhere)")
	caseSensitive := fs.Bool("case", false, "Match the trigger case-sensitively")
	desc := fs.String("desc", "", "Description")
	tags := fs.String("tags", "", "Comma-separated tags")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: snippet add [flags] <trigger> <expansion>", errUsage)
	}

	m, err := snippet.ParseTriggerMode(*mode)
	if err != nil {
		return err
	}
	s := snippet.New(fs.Arg(0), strings.Join(fs.Args()[1:], " "))
	s.TriggerMode = m
	s.CaseSensitive = *caseSensitive
	s.Description = *desc
	for _, t := range strings.Split(*tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			s.Tags = append(s.Tags, t)
		}
	}
	if err := st.Put(ctx, s); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "added %s (%s)\n", s.Trigger, s.ID)
	return err
}

func snippetList(ctx context.Context, st store.Store, out io.Writer) error {
	set, err := st.Snippets(ctx)
	if err != nil {
		return err
	}
	list := make([]*snippet.Snippet, 0, len(set))
	for _, s := range set {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Trigger < list[j].Trigger })

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRIGGER\tMODE\tUSES\tENABLED\tEXPANSION")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", s.Trigger, s.TriggerMode, s.UsageCount, s.Enabled, preview(s.Expansion, 40))
	}
	return w.Flush()
}

func snippetRemove(ctx context.Context, st store.Store, ref string, out io.Writer) error {
	set, err := st.Snippets(ctx)
	if err != nil {
		return err
	}
	id := ref
	if _, ok := set[ref]; !ok {
		s := set.ByTrigger(ref)
		if s == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, ref)
		}
		id = s.ID
	}
	if err := st.Delete(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "removed %s\n", id)
	return err
}

// preview returns the first line of s cut to n runes.
func preview(s string, n int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i] + "…"
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
