package query

// Excluder is satisfied by the gap set: keys it contains are not sent upstream.
type Excluder interface {
	Contains(key string) bool
}

// Reduce drops every parameter whose key the excluder contains, keeping the relative
// order of the rest.
func Reduce(spec Spec, gap Excluder) Spec {
	reduced := Spec{ResourceType: spec.ResourceType}
	for _, p := range spec.Params {
		if gap != nil && gap.Contains(p.Key()) {
			continue
		}
		reduced.Params = append(reduced.Params, p)
	}
	return reduced
}

// Rewrite returns the reduced query in canonical form: the resource type alone when no
// parameter survives, otherwise Type?name1=value1&name2=value2.
func Rewrite(spec Spec, gap Excluder) string {
	return Reduce(spec, gap).String()
}
