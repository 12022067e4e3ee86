package preferences

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSystemProvider loads recipient preferences from *.yaml files in a
// directory. Each file contains exactly one UserPreferences document keyed by
// its recipient_id. Files are loaded once at startup — no hot reload.
//
// Recipients without a file receive the configured defaults.
type FileSystemProvider struct {
	dir      string
	defaults UserPreferences
	byID     map[string]UserPreferences
}

// NewFileSystemProvider creates a provider and eagerly loads all preference
// files from dir. Returns an error if any file is malformed.
func NewFileSystemProvider(dir string, defaultChannels []string) (*FileSystemProvider, error) {
	p := &FileSystemProvider{
		dir: dir,
		defaults: UserPreferences{
			Channels:  defaultChannels,
			Verbosity: VerbosityStandard,
		},
		byID: make(map[string]UserPreferences),
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FileSystemProvider) load() error {
	info, err := os.Stat(p.dir)
	if os.IsNotExist(err) {
		return nil // no preferences directory — valid (defaults for everyone)
	}
	if err != nil {
		return fmt.Errorf("preferences dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("preferences path %q is not a directory", p.dir)
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("reading preferences dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(p.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading preferences file %s: %w", path, err)
		}

		var prefs UserPreferences
		if err := yaml.Unmarshal(data, &prefs); err != nil {
			return fmt.Errorf("parsing preferences file %s: %w", path, err)
		}
		if prefs.RecipientID == "" {
			continue // skip empty / comment-only files
		}
		if prefs.Verbosity == "" {
			prefs.Verbosity = VerbosityStandard
		}

		if _, exists := p.byID[prefs.RecipientID]; exists {
			return fmt.Errorf("recipient %q: duplicate preferences (check multiple YAML files)", prefs.RecipientID)
		}
		p.byID[prefs.RecipientID] = prefs
	}
	return nil
}

// Get returns the recipient's preferences, falling back to defaults for
// recipients without a preferences file.
func (p *FileSystemProvider) Get(_ context.Context, recipientID string) (UserPreferences, error) {
	if prefs, ok := p.byID[recipientID]; ok {
		return prefs, nil
	}

	prefs := p.defaults
	prefs.RecipientID = recipientID
	return prefs, nil
}
