package ensemble

import (
	"encoding/json"
	"os"

	"github.com/treestat/treestat/pkg/errors"
)

// LoadModelFromJSON reads a model document from disk and validates its
// structure. The document carries the split pool, per-tree split indices,
// the feature count and the info map holding the training params JSON.
func LoadModelFromJSON(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model file %s", path)
	}
	return ParseModelJSON(data)
}

// ParseModelJSON decodes and validates a model document.
func ParseModelJSON(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, errors.Wrap(err, "decoding model JSON")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}
