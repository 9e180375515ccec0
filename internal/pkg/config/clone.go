package config

// Clone returns a deep copy of the host configuration. The host hands out
// clones so callers cannot mutate the snapshot it runs from.
func (h *HostConfig) Clone() *HostConfig {
	if h == nil {
		return nil
	}

	out := *h
	out.Context = h.Context.clone()
	if h.Processors != nil {
		out.Processors = make([]ProcessorDefinition, len(h.Processors))
		for i, def := range h.Processors {
			out.Processors[i] = def.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the definition
func (d ProcessorDefinition) Clone() ProcessorDefinition {
	out := d
	out.Properties = cloneMap(d.Properties)
	if d.Context != nil {
		c := d.Context.clone()
		out.Context = &c
	}
	if d.Schedule != nil {
		s := *d.Schedule
		if d.Schedule.Weekdays != nil {
			s.Weekdays = append([]string(nil), d.Schedule.Weekdays...)
		}
		if d.Schedule.EarliestRun != nil {
			t := *d.Schedule.EarliestRun
			s.EarliestRun = &t
		}
		if d.Schedule.LatestRun != nil {
			t := *d.Schedule.LatestRun
			s.LatestRun = &t
		}
		out.Schedule = &s
	}
	return out
}

func (c ContextConfig) clone() ContextConfig {
	return ContextConfig{Properties: cloneMap(c.Properties)}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
