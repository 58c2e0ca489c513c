// Package manifest reads and rewrites a project's package.json. Unlike a
// naive unmarshal/marshal round trip, writes go through sjson against the
// original byte buffer so that key order, indentation, and any fields
// pacquet doesn't model are preserved exactly as the user left them.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// DependencyField names one of the four dependency maps a package.json can
// declare. The string values are also the literal JSON keys they bind to.
type DependencyField string

const (
	Dependencies         DependencyField = "dependencies"
	DevDependencies      DependencyField = "devDependencies"
	OptionalDependencies DependencyField = "optionalDependencies"
	PeerDependencies     DependencyField = "peerDependencies"
)

// Manifest is a parsed package.json. It keeps both a structured view (for
// reading) and the original raw bytes (for writing), so that a targeted
// field update never disturbs the rest of the document.
type Manifest struct {
	Name                 string
	Version              string
	Private              bool
	PackageManager       string
	Scripts              map[string]string
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string

	// path is the absolute location this Manifest was read from, retained
	// so Save can write back without the caller re-supplying it.
	path turbopath.AbsoluteSystemPath
	// raw holds the exact bytes read from disk (or, after a Set call, the
	// bytes as rewritten by sjson) so that Save never loses formatting
	// pacquet doesn't model.
	raw []byte
}

// Read loads and parses the package.json at path.
func Read(path turbopath.AbsoluteSystemPath) (*Manifest, error) {
	raw, err := path.ReadFile()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(raw, path)
}

// Parse decodes raw package.json bytes into a Manifest. path is retained
// only so a later Save knows where to write; it may be empty for
// read-only uses (e.g. parsing a tarball's embedded package.json).
func Parse(raw []byte, path turbopath.AbsoluteSystemPath) (*Manifest, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("package.json at %s is not valid JSON", path)
	}

	m := &Manifest{path: path, raw: raw}
	root := gjson.ParseBytes(raw)

	m.Name = root.Get("name").String()
	m.Version = root.Get("version").String()
	m.Private = root.Get("private").Bool()
	m.PackageManager = root.Get("packageManager").String()
	m.Scripts = stringMap(root.Get("scripts"))
	m.Dependencies = stringMap(root.Get(string(Dependencies)))
	m.DevDependencies = stringMap(root.Get(string(DevDependencies)))
	m.OptionalDependencies = stringMap(root.Get(string(OptionalDependencies)))
	m.PeerDependencies = stringMap(root.Get(string(PeerDependencies)))

	return m, nil
}

func stringMap(v gjson.Result) map[string]string {
	raw := v.Map()
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = val.String()
	}
	return out
}

// SetDependency adds or updates a single entry in the named dependency
// field, rewriting the underlying raw JSON in place with sjson so every
// other key — including ones pacquet doesn't otherwise model — and the
// original key ordering survive untouched.
func (m *Manifest) SetDependency(field DependencyField, name string, rangeSpec string) error {
	path := fmt.Sprintf("%s.%s", field, sjsonEscape(name))
	next, err := sjson.SetBytesOptions(m.raw, path, rangeSpec, &sjson.Options{Optimistic: true, ReplaceInPlace: true})
	if err != nil {
		return errors.Wrapf(err, "setting %s in package.json", path)
	}
	m.raw = next

	switch field {
	case Dependencies:
		m.Dependencies = setIn(m.Dependencies, name, rangeSpec)
	case DevDependencies:
		m.DevDependencies = setIn(m.DevDependencies, name, rangeSpec)
	case OptionalDependencies:
		m.OptionalDependencies = setIn(m.OptionalDependencies, name, rangeSpec)
	case PeerDependencies:
		m.PeerDependencies = setIn(m.PeerDependencies, name, rangeSpec)
	}
	return nil
}

// RemoveDependency deletes a single entry from the named dependency field.
func (m *Manifest) RemoveDependency(field DependencyField, name string) error {
	path := fmt.Sprintf("%s.%s", field, sjsonEscape(name))
	next, err := sjson.DeleteBytes(m.raw, path)
	if err != nil {
		return errors.Wrapf(err, "removing %s from package.json", path)
	}
	m.raw = next

	switch field {
	case Dependencies:
		delete(m.Dependencies, name)
	case DevDependencies:
		delete(m.DevDependencies, name)
	case OptionalDependencies:
		delete(m.OptionalDependencies, name)
	case PeerDependencies:
		delete(m.PeerDependencies, name)
	}
	return nil
}

func setIn(m map[string]string, name, value string) map[string]string {
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[name] = value
	return m
}

// sjsonEscape escapes path-meaningful characters (".", "*", "?") in a
// package name before using it as an sjson path segment. Scoped package
// names ("@scope/name") already contain a "/" which sjson treats as a
// literal character within a segment, so only dot/wildcard need escaping.
func sjsonEscape(name string) string {
	out := make([]byte, 0, len(name))
	for _, c := range []byte(name) {
		if c == '.' || c == '*' || c == '?' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

// Raw returns the current raw JSON bytes backing this manifest, reflecting
// any SetDependency/RemoveDependency calls made so far.
func (m *Manifest) Raw() []byte {
	return m.raw
}

// Save writes the current raw bytes back to the path this Manifest was
// read from. It errors if the Manifest wasn't constructed via Read.
func (m *Manifest) Save() error {
	if m.path == "" {
		return fmt.Errorf("manifest has no backing path to save to")
	}
	return m.path.WriteFile(append(m.raw, '\n'), 0o644)
}

// AllDependencies returns the union of every dependency field, in the
// fixed precedence order dependencies > devDependencies >
// optionalDependencies > peerDependencies — matching how pnpm treats a
// name declared in more than one field.
func (m *Manifest) AllDependencies() map[string]string {
	out := make(map[string]string)
	for _, field := range []map[string]string{
		m.PeerDependencies,
		m.OptionalDependencies,
		m.DevDependencies,
		m.Dependencies,
	} {
		for name, rng := range field {
			out[name] = rng
		}
	}
	return out
}

// MarshalIndent encodes v as two-space-indented JSON. Nothing in this
// module calls it; manifest writes go through SetDependency + Save so
// that key order is preserved.
func MarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
