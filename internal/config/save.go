package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/lanes/internal/log"
)

// SaveRecentRepositories updates recent_repositories in the config file.
// Comments and formatting in other sections are preserved by editing the
// file as a yaml.Node.
func SaveRecentRepositories(configPath string, repos []string) error {
	node := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range repos {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: r})
	}
	if err := saveKey(configPath, "recent_repositories", node); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to save recent repositories", err, "path", configPath)
		return err
	}
	log.Debug(log.CatConfig, "Saved recent repositories", "path", configPath, "count", len(repos))
	return nil
}

// AddRecentRepository returns repos with path moved to the front, without
// duplicates and capped at MaxRecentRepositories. repos is not modified.
func AddRecentRepository(repos []string, path string) []string {
	updated := make([]string, 0, len(repos)+1)
	updated = append(updated, path)
	for _, r := range repos {
		if r == path {
			continue
		}
		updated = append(updated, r)
		if len(updated) == MaxRecentRepositories {
			break
		}
	}
	return updated
}

// saveKey replaces (or appends) a top-level key in the config file and
// writes it back atomically.
func saveKey(configPath, key string, value *yaml.Node) error {
	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path is the user's config file
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	switch {
	case doc.Kind == 0:
		// Empty or new file
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{Kind: yaml.MappingNode, Content: []*yaml.Node{keyNode, value}},
			},
		}
	case doc.Kind == yaml.DocumentNode && len(doc.Content) > 0:
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level is not a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == key {
				root.Content[i+1] = value
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content, keyNode, value)
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".lanes.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
