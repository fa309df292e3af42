package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// lastFile is loaded after every other file in a directory
const lastFile = "other.json"

// LoadDir reads every .json, .yaml and .yml file in dir. Each file may hold
// {"intents": [...]}, a single intent object, or a list of intents.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isIntentFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i] == lastFile || files[j] == lastFile {
			return files[j] == lastFile && files[i] != lastFile
		}
		return files[i] < files[j]
	})

	var intents []Intent
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		intents = append(intents, parsed...)
	}

	return New(intents)
}

// LoadFile reads a single intent file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}
	intents, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return New(intents)
}

// Load reads path as a directory or a single file
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access intents: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// Parse decodes one intent document. JSON documents are valid YAML.
func Parse(data []byte) ([]Intent, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]

	switch doc.Kind {
	case yaml.SequenceNode:
		var list []Intent
		if err := doc.Decode(&list); err != nil {
			return nil, err
		}
		return withTags(list), nil

	case yaml.MappingNode:
		var wrapper struct {
			Intents []Intent `yaml:"intents"`
		}
		if err := doc.Decode(&wrapper); err != nil {
			return nil, err
		}
		if wrapper.Intents != nil {
			return withTags(wrapper.Intents), nil
		}

		var single Intent
		if err := doc.Decode(&single); err != nil {
			return nil, err
		}
		if single.Tag == "" {
			return nil, fmt.Errorf("unrecognized intent format")
		}
		return []Intent{single}, nil
	}

	return nil, fmt.Errorf("unrecognized intent format")
}

func withTags(list []Intent) []Intent {
	out := list[:0]
	for _, intent := range list {
		if intent.Tag != "" {
			out = append(out, intent)
		}
	}
	return out
}

func isIntentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
