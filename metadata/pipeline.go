package metadata

// Extractor reads upstream metadata before a unit processes its inputs.
type Extractor interface {
	ExtractMetadata(upstream *Map)
}

// Injector proposes keys to add to the current metadata.
type Injector interface {
	InjectMetadata(current *Map) *Map
}

// Generator returns the replacement for the current metadata.
type Generator interface {
	GenerateMetadata(current *Map) *Map
}

// Participant takes part in every pipeline step.
type Participant interface {
	Extractor
	Injector
	Generator
}

// Pipeline derives outgoing node metadata from upstream metadata.
type Pipeline struct {
	opts Options
}

// NewPipeline creates a pipeline with the given cleaning options.
func NewPipeline(opts Options) *Pipeline {
	opts.ApplyDefaults()
	return &Pipeline{opts: opts}
}

// Options returns the pipeline's cleaning options.
func (p *Pipeline) Options() Options { return p.opts }

// Merge combines maps left to right; later keys override earlier ones.
func (p *Pipeline) Merge(maps ...*Map) *Map {
	out := New()
	for _, m := range maps {
		m.Each(func(k string, v any) {
			out.Set(k, cloneValue(v))
		})
	}
	return out
}

// Clean applies the pipeline's cleaning options.
func (p *Pipeline) Clean(m *Map) *Map {
	return Clean(m, p.opts)
}

// Extract hands the unit a copy of the merged upstream metadata.
func (p *Pipeline) Extract(e Extractor, upstream *Map) {
	e.ExtractMetadata(upstream.Clone())
}

// Inject merges the unit's proposal into current without overwriting
// existing keys.
func (p *Pipeline) Inject(i Injector, current *Map) *Map {
	out := current.Clone()
	proposed := i.InjectMetadata(current.Clone())
	proposed.Each(func(k string, v any) {
		out.SetIfAbsent(k, v)
	})
	return out
}

// Generate replaces current with the unit's result; nil keeps current.
func (p *Pipeline) Generate(g Generator, current *Map) *Map {
	generated := g.GenerateMetadata(current.Clone())
	if generated == nil {
		return current
	}
	return generated
}

// Outgoing runs clean, inject, generate and clean over upstream metadata.
// A non-nil stamp is written after the generate step when stamping is on.
func (p *Pipeline) Outgoing(unit Participant, upstream *Map, stamp *Map) *Map {
	current := p.Clean(upstream)
	current = p.Inject(unit, current)
	current = p.Generate(unit, current)
	if p.opts.StampEnvironment {
		stamp.Each(func(k string, v any) {
			current.Set(k, v)
		})
	}
	return p.Clean(current)
}
