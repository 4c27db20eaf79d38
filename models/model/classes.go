package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// OutputClass represents one classifier label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The dataset identifier, e.g. "n02099601".
	ID string
	// The human-readable label, e.g. "golden_retriever".
	Name string
}

// OutputClassSet ties a family to its full list of labels.
type OutputClassSet struct {
	// Family is the label set identifier.
	Family Family
	// Classes are ordered by Index, starting at zero.
	Classes []OutputClass
}

// NewOutputClassSet builds a class set from labels ordered by output index.
func NewOutputClassSet(family Family, classes []OutputClass) (*OutputClassSet, error) {
	for i, c := range classes {
		if c.Index != i {
			return nil, fmt.Errorf("class %q has index %d, expected %d", c.Name, c.Index, i)
		}
	}
	return &OutputClassSet{Family: family, Classes: classes}, nil
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Get returns the class at output index idx.
func (s *OutputClassSet) Get(idx int) (OutputClass, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return OutputClass{}, fmt.Errorf("index %d out of range for %q", idx, s.Family)
	}
	return s.Classes[idx], nil
}

// LoadImageNetClassIndex reads a Keras style class index file, a JSON object
// mapping the output index to a [wordnet id, label] pair:
//
//	{"0": ["n01440764", "tench"], "1": ["n01443537", "goldfish"], ...}
//
// Arguments:
//   - path: Path to the JSON file.
//
// Returns:
//   - *OutputClassSet: The classes ordered by index.
//   - error: An error if the file is missing, malformed or has gaps.
func LoadImageNetClassIndex(path string) (*OutputClassSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read class index")
	}
	return ParseImageNetClassIndex(data)
}

// ParseImageNetClassIndex parses the contents of a Keras style class index file.
func ParseImageNetClassIndex(data []byte) (*OutputClassSet, error) {
	raw := make(map[string][]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse class index")
	}
	if len(raw) == 0 {
		return nil, errors.New("class index is empty")
	}

	classes := make([]OutputClass, len(raw))
	seen := make([]bool, len(raw))
	for key, entry := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("class index key %q is not an integer", key)
		}
		if idx < 0 || idx >= len(raw) {
			return nil, fmt.Errorf("class index %d out of range 0..%d", idx, len(raw)-1)
		}
		if len(entry) != 2 {
			return nil, fmt.Errorf("class index %d has %d fields, expected 2", idx, len(entry))
		}
		classes[idx] = OutputClass{Index: idx, ID: entry[0], Name: entry[1]}
		seen[idx] = true
	}
	for idx, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("class index %d is missing", idx)
		}
	}
	return NewOutputClassSet(ModelFamilyImageNet, classes)
}
