// Package markers holds the marker configuration: which tags are grouped into
// rigid objects, their physical size and where each tag sits within its
// object.  A Configuration is immutable once built and safe to share.
package markers

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/swdee/go-markerpose/geometry"
)

// TagID identifies a physical fiducial marker
type TagID int

// ErrConfigurationLoad is matched by every error returned when a
// configuration source is missing, unreadable or invalid
var ErrConfigurationLoad = errors.New("marker configuration load failed")

// LoadError reports why a configuration source was rejected
type LoadError struct {
	// Source names the file or stream being loaded
	Source string
	// Err is the underlying cause
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrConfigurationLoad, e.Source, e.Err)
}

// Unwrap returns the underlying cause
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConfigurationLoad) hold for every LoadError
func (e *LoadError) Is(target error) bool {
	return target == ErrConfigurationLoad
}

// Offset places a marker within its parent object
type Offset struct {
	// Translation of the marker's corner 0 in object space
	Translation r3.Vector
	// Rotation holds the Euler angles in degrees, applied X then Y then Z
	Rotation r3.Vector
}

// Transform returns the marker-to-object transformation
func (o Offset) Transform() geometry.Transform {
	return geometry.MakeTransformation(o.Rotation.X, o.Rotation.Y, o.Rotation.Z,
		o.Translation.X, o.Translation.Y, o.Translation.Z)
}

// MarkerSpec describes one tag of an object
type MarkerSpec struct {
	ID   TagID
	Size float64
	// Offset of the marker within the object
	Offset Offset
	// KeepIndependent additionally reports the marker's own pose
	KeepIndependent bool
	// LocalCorners are the corners in the marker's own plane (z=0) with
	// corner 0 at the origin
	LocalCorners [4]geometry.Point3D
	// ObjectCorners are LocalCorners expressed in the parent object's frame
	ObjectCorners [4]geometry.Point3D
}

// NewMarkerSpec builds a MarkerSpec and precomputes its corners
func NewMarkerSpec(id TagID, size float64, offset Offset, keep bool) (MarkerSpec, error) {

	if !(size > 0) || math.IsInf(size, 0) {
		return MarkerSpec{}, errors.Wrapf(ErrConfigurationLoad,
			"marker %d: size must be positive and finite, got %v", id, size)
	}

	if !finite(offset.Translation) {
		return MarkerSpec{}, errors.Wrapf(ErrConfigurationLoad,
			"marker %d: translation %v is not finite", id, offset.Translation)
	}

	if !finite(offset.Rotation) {
		return MarkerSpec{}, errors.Wrapf(ErrConfigurationLoad,
			"marker %d: rotation %v is not finite", id, offset.Rotation)
	}

	m := MarkerSpec{
		ID:              id,
		Size:            size,
		Offset:          offset,
		KeepIndependent: keep,
		LocalCorners:    LocalCorners(size),
	}

	tr := offset.Transform()

	for i, c := range m.LocalCorners {
		m.ObjectCorners[i] = tr.Apply(c)
	}

	return m, nil
}

// finite reports whether no component of v is NaN or infinite
func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// LocalCorners returns the corners of a square marker of the given size in
// its own plane, ordered top-left, top-right, bottom-right, bottom-left
func LocalCorners(size float64) [4]geometry.Point3D {
	return [4]geometry.Point3D{
		{X: 0, Y: 0, Z: 0},
		{X: size, Y: 0, Z: 0},
		{X: size, Y: size, Z: 0},
		{X: 0, Y: size, Z: 0},
	}
}

// ObjectSpec is a named rigid cluster of markers
type ObjectSpec struct {
	Name    string
	Markers []MarkerSpec
}

// markerRef locates a marker inside the configuration's object arena
type markerRef struct {
	object int
	marker int
}

// Configuration is the parsed collection of objects with lookups by tag ID
type Configuration struct {
	objects []ObjectSpec
	// index from tag to the position of its marker
	byTag map[TagID]markerRef
}

// Empty returns a configuration without objects, every tag is free
func Empty() *Configuration {
	return &Configuration{
		byTag: make(map[TagID]markerRef),
	}
}

// New builds a configuration from object specs.  Marker corners are
// recomputed from each marker's size and offset.  Empty object names,
// repeated object names, objects without markers and tag IDs used more
// than once are rejected
func New(objects []ObjectSpec) (*Configuration, error) {

	cfg := Empty()
	names := make(map[string]bool)

	for _, obj := range objects {

		if obj.Name == "" {
			return nil, errors.New("object name is empty")
		}

		if names[obj.Name] {
			return nil, errors.Errorf("object %q is defined twice", obj.Name)
		}

		names[obj.Name] = true

		if len(obj.Markers) == 0 {
			return nil, errors.Errorf("object %q has no markers", obj.Name)
		}

		spec := ObjectSpec{
			Name:    obj.Name,
			Markers: make([]MarkerSpec, 0, len(obj.Markers)),
		}

		objIdx := len(cfg.objects)

		for _, m := range obj.Markers {

			if prev, exists := cfg.byTag[m.ID]; exists {
				owner := obj.Name
				if prev.object < len(cfg.objects) {
					owner = cfg.objects[prev.object].Name
				}
				return nil, errors.Errorf("object %q: marker %d is already used by object %q",
					obj.Name, m.ID, owner)
			}

			ms, err := NewMarkerSpec(m.ID, m.Size, m.Offset, m.KeepIndependent)

			if err != nil {
				return nil, errors.Wrapf(err, "object %q", obj.Name)
			}

			cfg.byTag[m.ID] = markerRef{object: objIdx, marker: len(spec.Markers)}
			spec.Markers = append(spec.Markers, ms)
		}

		cfg.objects = append(cfg.objects, spec)
	}

	return cfg, nil
}

// Len returns the number of objects
func (c *Configuration) Len() int {
	return len(c.objects)
}

// Objects returns the objects in definition order.  The returned slice is a
// copy but the marker slices are shared and must not be modified
func (c *Configuration) Objects() []ObjectSpec {

	out := make([]ObjectSpec, len(c.objects))
	copy(out, c.objects)

	return out
}

// ObjectFor returns the object owning the tag
func (c *Configuration) ObjectFor(id TagID) (*ObjectSpec, bool) {

	ref, ok := c.byTag[id]

	if !ok {
		return nil, false
	}

	return &c.objects[ref.object], true
}

// ObjectIndex returns the definition order position of the object owning
// the tag
func (c *Configuration) ObjectIndex(id TagID) (int, bool) {
	ref, ok := c.byTag[id]
	return ref.object, ok
}

// Marker returns the marker spec of the tag
func (c *Configuration) Marker(id TagID) (*MarkerSpec, bool) {

	ref, ok := c.byTag[id]

	if !ok {
		return nil, false
	}

	return &c.objects[ref.object].Markers[ref.marker], true
}

// Tags returns every configured tag ID in ascending order
func (c *Configuration) Tags() []TagID {

	ids := make([]TagID, 0, len(c.byTag))

	for id := range c.byTag {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
