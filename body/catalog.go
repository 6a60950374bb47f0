package body

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed bodies.yaml
var defaultCatalog []byte

// FixedBodies are the eight planets the client streams `<name>Data` records for
var FixedBodies = []string{
	"mercury", "venus", "earth", "mars",
	"jupiter", "saturn", "uranus", "neptune",
}

// DataSuffix is appended to a fixed body id to form its ingest message type
const DataSuffix = "Data"

// DataMessageType returns the ingest message type for a fixed body, e.g. "earthData"
func DataMessageType(id string) string {
	return normalizeID(id) + DataSuffix
}

// FixedBodyForType maps an ingest message type back to its body id
func FixedBodyForType(msgType string) (string, bool) {
	for _, id := range FixedBodies {
		if DataMessageType(id) == msgType {
			return id, true
		}
	}
	return "", false
}

// IsFixed reports whether id is one of the eight fixed planets
func IsFixed(id string) bool {
	id = normalizeID(id)
	for _, f := range FixedBodies {
		if f == id {
			return true
		}
	}
	return false
}

// Catalog is the initial population of a simulation
type Catalog struct {
	Anchor Input   `yaml:"anchor"`
	Bodies []Input `yaml:"bodies"`
}

var errNoAnchor = errors.New("catalog has no anchor")

// DecodeCatalog reads a YAML catalog
func DecodeCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if c.Anchor.ID() == "" {
		return Catalog{}, errNoAnchor
	}
	if c.Anchor.ID() != AnchorID {
		return Catalog{}, fmt.Errorf("catalog anchor %q must be %q", c.Anchor.ID(), AnchorID)
	}
	return c, nil
}

// DefaultCatalog returns the built-in solar system
func DefaultCatalog() Catalog {
	c, err := DecodeCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic("embedded catalog: " + err.Error())
	}
	return c
}

// ReadCatalogFile loads a catalog from disk. An empty path yields the
// built-in catalog.
func ReadCatalogFile(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, err
	}
	defer f.Close()
	return DecodeCatalog(f)
}

// Find returns the catalog record for id
func (c Catalog) Find(id string) (Input, bool) {
	id = normalizeID(id)
	if c.Anchor.ID() == id {
		return c.Anchor, true
	}
	for _, in := range c.Bodies {
		if in.ID() == id {
			return in, true
		}
	}
	return Input{}, false
}

// Populate registers the anchor and then every catalog body in order.
// Satellites must follow their primary in the list.
func (r *Registry) Populate(c Catalog) error {
	if _, err := r.RegisterKind(c.Anchor, KindAnchor); err != nil {
		return err
	}
	for _, in := range c.Bodies {
		if _, err := r.Register(in); err != nil {
			return err
		}
	}
	return nil
}
