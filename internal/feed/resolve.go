package feed

// Resolve evaluates a binding against one record.
//
// Multi-value fields are flattened to their first value. Parent bindings on a
// record without a parent, and unknown field names, resolve to "".
func Resolve(b Binding, rec *Record) string {
	switch b.kind {
	case BindComputed:
		if b.fn == nil {
			return ""
		}
		return b.fn(rec)
	case BindElement:
		return first(rec.Field(b.field))
	case BindParent:
		if rec.Parent == nil {
			return ""
		}
		return first(rec.Parent.Field(b.field))
	}
	return b.value
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
