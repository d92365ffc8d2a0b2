package resource

// URLKind tags which variant a URLConf is.
type URLKind int

const (
	// URLStatic serves local_path at hostname+path.
	URLStatic URLKind = iota
	// URLBackend proxies hostname+path to destination.
	URLBackend
)

func (k URLKind) String() string {
	switch k {
	case URLStatic:
		return "static"
	case URLBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// URLConf is a tagged union over the two HTTP routing variants the stack
// document can describe. Identity for each variant covers every field it
// carries (hostname, path, and the variant-specific payload).
type URLConf struct {
	Kind        URLKind
	Hostname    string
	Path        string
	LocalPath   string // set when Kind == URLStatic
	Destination string // set when Kind == URLBackend
}

// Equal compares two URLConf values field-for-field.
func (u URLConf) Equal(other URLConf) bool {
	return u == other
}

// AsMap produces the structural, JSON-ready form of a URLConf.
func (u URLConf) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"type":     u.Kind.String(),
		"hostname": u.Hostname,
		"path":     u.Path,
	}
	switch u.Kind {
	case URLStatic:
		m["local_path"] = u.LocalPath
	case URLBackend:
		m["destination"] = u.Destination
	}
	return m
}
