package imagecache

// Element is whatever the rendering layer draws.
type Element any

// ActivityIndicator is the default placeholder.
type ActivityIndicator struct{}

// Image is the default rendering of a resolved source. Source is the resolved
// reference, never the logical source; it is nil when nothing resolved yet.
type Image struct {
	Source *Source
	Attrs  map[string]any
}

// render is a pure function of props and state.
func render(p Props, s State) Element {
	if !s.Ready || s.Loading {
		if p.Placeholder != nil {
			return p.Placeholder()
		}
		return ActivityIndicator{}
	}
	if p.Children != nil {
		return p.Children(s.Resolved)
	}
	return Image{Source: s.Resolved, Attrs: imageAttrs(p.Attrs)}
}

// imageAttrs copies the pass-through display properties. A "source" attr is
// dropped: the image always gets the resolved reference.
func imageAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k == "source" {
			continue
		}
		out[k] = v
	}
	return out
}
