package canon

// FromGo converts a plain Go value (as commonly built from string/int/bool/
// slice/map literals in handler and event code) into a Value. It is the
// bridge used by event detail rendering and issue-detail canonicalization,
// where callers build details with ordinary Go literals rather than
// constructing canon.Value directly.
func FromGo(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float64:
		return Int(int64(t))
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Array(items)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromGo(item)
		}
		return Array(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromGo(item)
		}
		return Object(fields)
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = String(item)
		}
		return Object(fields)
	default:
		return Null()
	}
}
