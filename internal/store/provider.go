package store

import (
	"log/slog"
	"sync"

	"github.com/jward/buildscope/internal/registry"
)

// Provider serves the catalog of a Store. Type references are resolved
// against the types table, reloaded whenever the store is written. Query
// failures are logged and answered with empty results.
type Provider struct {
	s   *Store
	log *slog.Logger

	mu       sync.Mutex
	gen      int64
	resolver *registry.Resolver
}

var _ registry.Provider = (*Provider)(nil)

// NewProvider returns a provider reading from s. A nil logger uses
// slog.Default().
func NewProvider(s *Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{s: s, log: logger}
}

// withResolver runs fn with a resolver matching the current store contents.
func (p *Provider) withResolver(fn func(r *registry.Resolver)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen := p.s.Generation(); p.resolver == nil || gen != p.gen {
		specs, err := p.s.typeSpecs()
		if err != nil {
			return err
		}
		p.resolver = registry.NewResolver(&registry.Catalog{Types: specs})
		p.gen = gen
	}
	fn(p.resolver)
	return nil
}

func (p *Provider) warn(op string, err error) {
	p.log.Warn("catalog query failed", "op", op, "err", err)
}

func (p *Provider) tasks(op string, rows []*Task, keep func(registry.TaskName) bool) map[registry.TaskName]*registry.TaskInformation {
	out := make(map[registry.TaskName]*registry.TaskInformation)
	specs := make([]registry.TaskSpec, 0, len(rows))
	for _, t := range rows {
		if !keep(registry.ParseTaskName(t.Name)) {
			continue
		}
		spec, err := p.s.taskSpec(t)
		if err != nil {
			p.warn(op, err)
			return out
		}
		specs = append(specs, spec)
	}
	err := p.withResolver(func(r *registry.Resolver) {
		for _, spec := range specs {
			ti, err := r.Task(spec)
			if err != nil {
				p.warn(op, err)
				continue
			}
			out[ti.Name] = ti
		}
	})
	if err != nil {
		p.warn(op, err)
	}
	return out
}

func (p *Provider) Tasks(keyword string) map[registry.TaskName]*registry.TaskInformation {
	rows, err := p.s.TasksByPrefix(keyword)
	if err != nil {
		p.warn("tasks", err)
		return map[registry.TaskName]*registry.TaskInformation{}
	}
	return p.tasks("tasks", rows, func(tn registry.TaskName) bool {
		return registry.HasPrefixFold(tn.Name, keyword)
	})
}

func (p *Provider) TaskInformation(name registry.TaskName) map[registry.TaskName]*registry.TaskInformation {
	rows, err := p.s.TasksBySimpleName(name.Name)
	if err != nil {
		p.warn("task information", err)
		return map[registry.TaskName]*registry.TaskInformation{}
	}
	return p.tasks("task information", rows, func(tn registry.TaskName) bool {
		return tn.Name == name.Name
	})
}

func (p *Provider) TaskParameterInformation(name registry.TaskName, param string) map[registry.TaskName]*registry.TaskParameterInformation {
	return registry.ParametersOf(p.TaskInformation(name), param)
}

func (p *Provider) literals(op string, rows []*Literal, typeContext *registry.TypeInformation, limit int) []*registry.LiteralInformation {
	var out []*registry.LiteralInformation
	err := p.withResolver(func(r *registry.Resolver) {
		for _, l := range rows {
			li, err := r.Literal(literalSpec(l))
			if err != nil {
				p.warn(op, err)
				continue
			}
			if registry.LiteralFits(li, typeContext) {
				out = append(out, li)
				if limit > 0 && len(out) == limit {
					return
				}
			}
		}
	})
	if err != nil {
		p.warn(op, err)
	}
	return out
}

func (p *Provider) Literals(keyword string, typeContext *registry.TypeInformation) []*registry.LiteralInformation {
	rows, err := p.s.LiteralsByPrefix(keyword)
	if err != nil {
		p.warn("literals", err)
		return nil
	}
	return p.literals("literals", rows, typeContext, 0)
}

func (p *Provider) LiteralInformation(literal string, typeContext *registry.TypeInformation) *registry.LiteralInformation {
	rows, err := p.s.LiteralsByValue(literal)
	if err != nil {
		p.warn("literal information", err)
		return nil
	}
	if out := p.literals("literal information", rows, typeContext, 1); len(out) > 0 {
		return out[0]
	}
	return nil
}
