package registry

import "sync"

// Caching memoizes the task queries of a wrapped Provider. Literal queries
// depend on the type context of the caller and are always forwarded.
type Caching struct {
	p Provider

	mu       sync.Mutex
	gen      uint64
	tasks    map[string]map[TaskName]*TaskInformation
	taskInfo map[TaskName]map[TaskName]*TaskInformation
	params   map[paramKey]map[TaskName]*TaskParameterInformation
}

type paramKey struct {
	task  TaskName
	param string
}

var _ Provider = (*Caching)(nil)

// NewCaching wraps p.
func NewCaching(p Provider) *Caching {
	return &Caching{
		p:        p,
		tasks:    make(map[string]map[TaskName]*TaskInformation),
		taskInfo: make(map[TaskName]map[TaskName]*TaskInformation),
		params:   make(map[paramKey]map[TaskName]*TaskParameterInformation),
	}
}

// Unwrap returns the wrapped provider.
func (c *Caching) Unwrap() Provider { return c.p }

// Reset drops every cached answer.
func (c *Caching) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.tasks)
	clear(c.taskInfo)
	clear(c.params)
}

// lookup answers from m, or calls fetch without holding the lock and stores
// its answer unless a Reset happened meanwhile.
func lookup[K comparable, V any](c *Caching, m map[K]V, key K, fetch func() V) V {
	c.mu.Lock()
	if r, ok := m[key]; ok {
		c.mu.Unlock()
		return r
	}
	gen := c.gen
	c.mu.Unlock()

	r := fetch()

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := m[key]; ok {
		return prev
	}
	if c.gen == gen {
		m[key] = r
	}
	return r
}

func (c *Caching) Tasks(keyword string) map[TaskName]*TaskInformation {
	return lookup(c, c.tasks, keyword, func() map[TaskName]*TaskInformation {
		return c.p.Tasks(keyword)
	})
}

func (c *Caching) TaskInformation(name TaskName) map[TaskName]*TaskInformation {
	return lookup(c, c.taskInfo, name, func() map[TaskName]*TaskInformation {
		return c.p.TaskInformation(name)
	})
}

func (c *Caching) TaskParameterInformation(name TaskName, param string) map[TaskName]*TaskParameterInformation {
	return lookup(c, c.params, paramKey{name, param}, func() map[TaskName]*TaskParameterInformation {
		return c.p.TaskParameterInformation(name, param)
	})
}

func (c *Caching) Literals(keyword string, typeContext *TypeInformation) []*LiteralInformation {
	return c.p.Literals(keyword, typeContext)
}

func (c *Caching) LiteralInformation(literal string, typeContext *TypeInformation) *LiteralInformation {
	return c.p.LiteralInformation(literal, typeContext)
}
