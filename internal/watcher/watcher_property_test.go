//go:build property

package watcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/conneroisu/koisite/internal/config"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestWatcherProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("debounced batches hold each path once", prop.ForAll(
		func(paths []int) bool {
			d := newDebouncer(5 * time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go d.start(ctx)

			distinct := map[string]bool{}
			for _, p := range paths {
				name := fmt.Sprintf("f%d.koi", p)
				distinct[name] = true
				d.events <- ChangeEvent{Path: name}
			}
			if len(paths) == 0 {
				return true
			}

			select {
			case batch := <-d.output:
				seen := map[string]bool{}
				for _, ev := range batch {
					if seen[ev.Path] {
						return false
					}
					seen[ev.Path] = true
				}
				return len(seen) <= len(distinct)
			case <-time.After(time.Second):
				return false
			}
		},
		gen.SliceOfN(20, gen.IntRange(0, 5)),
	))

	properties.Property("routing never names a rule twice", prop.ForAll(
		func(picks []int) bool {
			choices := []string{"index.html", "style.scss", "snippets/a.koi", "assets/x.png", "README.md"}
			rels := make([]string, len(picks))
			for i, p := range picks {
				rels[i] = choices[p]
			}

			router := NewRouter(DefaultRules(config.Default()))
			seen := map[string]bool{}
			for _, name := range router.Route(events(rels...)) {
				if seen[name] {
					return false
				}
				seen[name] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.Property("ignored directories never route", prop.ForAll(
		func(name string) bool {
			cfg := config.Default()
			router := NewRouter(DefaultRules(cfg), IgnoredDirs(cfg)...)
			return len(router.Route(events("dist/"+name, "snippets/out/"+name+".koi"))) == 0
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
