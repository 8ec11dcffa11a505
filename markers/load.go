package markers

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// markerRecord is one entry of an object's marker sequence
type markerRecord struct {
	Marker      *int      `yaml:"marker"`
	Size        *float64  `yaml:"size"`
	Translation []float64 `yaml:"translation"`
	Rotation    []float64 `yaml:"rotation"`
	Keep        bool      `yaml:"keep"`
}

// recordFields lists the keys accepted in a marker record
var recordFields = map[string]bool{
	"marker":      true,
	"size":        true,
	"translation": true,
	"rotation":    true,
	"keep":        true,
}

// Load parses a YAML document mapping object names to sequences of marker
// records, for example
//
//	box:
//	  - marker: 2
//	    size: 50
//	    translation: [-50, -100, 0]
//	    rotation: [0, 0, 0]
//	    keep: true
//
// The stream must hold at most one YAML document.  An empty document yields
// an empty configuration.  Any other problem, including a marker size,
// translation or rotation that is not a finite number, is returned as a
// *LoadError matching ErrConfigurationLoad
func Load(r io.Reader) (*Configuration, error) {
	return load("stream", r)
}

// LoadString parses a configuration held in memory, see Load
func LoadString(s string) (*Configuration, error) {
	return load("string", strings.NewReader(s))
}

// LoadFile parses the configuration file at path, see Load
func LoadFile(path string) (*Configuration, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}

	defer f.Close()

	return load(path, f)
}

// LoadFileOrEmpty loads the configuration file at path, logging the problem
// and returning an empty configuration if it cannot be loaded
func LoadFileOrEmpty(path string) *Configuration {

	cfg, err := LoadFile(path)

	if err != nil {
		log.Printf("Using empty marker configuration: %v", err)
		return Empty()
	}

	return cfg
}

// load decodes and validates a configuration document from r
func load(source string, r io.Reader) (*Configuration, error) {

	var doc yaml.Node

	dec := yaml.NewDecoder(r)
	err := dec.Decode(&doc)

	if err == io.EOF {
		return Empty(), nil
	}

	if err != nil {
		return nil, &LoadError{Source: source, Err: errors.Wrap(err, "failed to parse YAML")}
	}

	var extra yaml.Node

	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			err = errors.Errorf("line %d: more than one document in stream", extra.Line)
		} else {
			err = errors.Wrap(err, "failed to parse YAML")
		}
		return nil, &LoadError{Source: source, Err: err}
	}

	objects, err := parseObjects(&doc)

	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	cfg, err := New(objects)

	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	return cfg, nil
}

// parseObjects walks the document's top level mapping in document order
func parseObjects(doc *yaml.Node) ([]ObjectSpec, error) {

	root := doc

	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, nil
		}
		root = root.Content[0]
	}

	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}

	if root.Kind != yaml.MappingNode {
		return nil, errors.Errorf("line %d: top level must map object names to marker lists", root.Line)
	}

	var objects []ObjectSpec

	for i := 0; i+1 < len(root.Content); i += 2 {

		key, value := root.Content[i], root.Content[i+1]

		if value.Kind != yaml.SequenceNode {
			return nil, errors.Errorf("line %d: object %q must be a sequence of markers",
				value.Line, key.Value)
		}

		obj := ObjectSpec{Name: key.Value}

		for _, item := range value.Content {

			m, err := parseMarker(item)

			if err != nil {
				return nil, errors.Wrapf(err, "object %q", key.Value)
			}

			obj.Markers = append(obj.Markers, m)
		}

		objects = append(objects, obj)
	}

	return objects, nil
}

// parseMarker decodes and checks a single marker record
func parseMarker(node *yaml.Node) (MarkerSpec, error) {

	if node.Kind != yaml.MappingNode {
		return MarkerSpec{}, errors.Errorf("line %d: marker entry must be a mapping", node.Line)
	}

	for i := 0; i < len(node.Content); i += 2 {
		if k := node.Content[i]; !recordFields[k.Value] {
			return MarkerSpec{}, errors.Errorf("line %d: unknown field %q", k.Line, k.Value)
		}
	}

	var rec markerRecord

	if err := node.Decode(&rec); err != nil {
		return MarkerSpec{}, errors.Wrapf(err, "line %d", node.Line)
	}

	switch {
	case rec.Marker == nil:
		return MarkerSpec{}, errors.Errorf("line %d: missing field \"marker\"", node.Line)
	case rec.Size == nil:
		return MarkerSpec{}, errors.Errorf("line %d: marker %d: missing field \"size\"", node.Line, *rec.Marker)
	case len(rec.Translation) != 3:
		return MarkerSpec{}, errors.Errorf("line %d: marker %d: translation needs 3 values, got %d",
			node.Line, *rec.Marker, len(rec.Translation))
	case len(rec.Rotation) != 3:
		return MarkerSpec{}, errors.Errorf("line %d: marker %d: rotation needs 3 values, got %d",
			node.Line, *rec.Marker, len(rec.Rotation))
	}

	return MarkerSpec{
		ID:   TagID(*rec.Marker),
		Size: *rec.Size,
		Offset: Offset{
			Translation: r3.Vector{X: rec.Translation[0], Y: rec.Translation[1], Z: rec.Translation[2]},
			Rotation:    r3.Vector{X: rec.Rotation[0], Y: rec.Rotation[1], Z: rec.Rotation[2]},
		},
		KeepIndependent: rec.Keep,
	}, nil
}
