package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// ReadDataset loads a dataset file. Files ending in .json are decoded as
// JSON, anything else as YAML. Unknown fields are rejected in both formats.
func ReadDataset(path string) (*models.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	ds, err := DecodeDataset(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// DecodeDataset decodes data as JSON or YAML. An empty document is a
// configuration error.
func DecodeDataset(data []byte, isJSON bool) (*models.Dataset, error) {
	var ds models.Dataset
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ds); err != nil {
			return nil, simerr.Configf("invalid dataset JSON: %v", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
			return nil, simerr.Configf("invalid dataset YAML: %v", err)
		}
	}

	if ds.Size() == 0 {
		return nil, simerr.Configf("dataset is empty")
	}
	return &ds, nil
}
