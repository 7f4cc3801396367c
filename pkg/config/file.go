package config

import (
	"bytes"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes the YAML file at path into v. ${VAR} and $VAR references
// are expanded from the environment before decoding, so secrets can stay out
// of the file. Unknown keys are rejected. Results are not cached.
//
// Example:
//
//	var topo queue.Topology
//	if err := config.LoadFile("queues.yaml", &topo); err != nil {
//		return err
//	}
func LoadFile[T any](path string, v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrReadingConfigFile, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)

	var out T
	if err := dec.Decode(&out); err != nil {
		return errors.Join(ErrParsingConfigFile, err)
	}

	*v = out
	return nil
}
