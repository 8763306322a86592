package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// Bundle layout.
const (
	ManifestName     = "manifest.json"
	SubscriptionsDir = "subscriptions"
)

type manifest struct {
	Shards *[]manifestShard `json:"shards"`
}

type manifestShard struct {
	Path *string `json:"path"`
}

// bundles collects shard paths from the manifest in root and from every
// bundle directory under root/subscriptions. It also returns the subscription
// ids, which are the bundle directory names.
func bundles(root string) (paths, subscriptions []string, err error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: domain path %s does not exist", domain.ErrOpen, root)
	}

	found := false
	if fileExists(filepath.Join(root, ManifestName)) {
		p, err := readManifest(root)
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, p...)
		found = true
	}

	subDir := filepath.Join(root, SubscriptionsDir)
	entries, err := os.ReadDir(subDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, nil, fmt.Errorf("%w: read %s: %w", domain.ErrOpen, subDir, err)
	default:
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			bundle := filepath.Join(subDir, e.Name())
			p, err := readManifest(bundle)
			if err != nil {
				return nil, nil, err
			}
			paths = append(paths, p...)
			subscriptions = append(subscriptions, e.Name())
			found = true
		}
	}

	if !found {
		return nil, nil, fmt.Errorf("%w: no %s in %s, install some content", domain.ErrOpen, ManifestName, root)
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%w: content is empty", domain.ErrOpen)
	}
	return paths, subscriptions, nil
}

// readManifest parses dir/manifest.json. Shard paths are relative to dir.
func readManifest(dir string) ([]string, error) {
	file := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOpen, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %w", domain.ErrOpen, file, domain.ErrMalformedData, err)
	}
	if m.Shards == nil {
		return nil, fmt.Errorf("%w: %s: %w: missing shards entry", domain.ErrOpen, file, domain.ErrMalformedData)
	}

	paths := make([]string, 0, len(*m.Shards))
	for i, s := range *m.Shards {
		if s.Path == nil || *s.Path == "" {
			return nil, fmt.Errorf("%w: %s: %w: shard %d has no path", domain.ErrOpen, file, domain.ErrMalformedData, i)
		}
		p := *s.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
