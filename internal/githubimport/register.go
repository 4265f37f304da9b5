package githubimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ushadow-io/ushadow/internal/registry"
)

// Reloader is the narrow slice of *registry.Registry the Importer
// needs: re-scan the services tree once a new file lands under it.
type Reloader interface {
	Reload() error
}

// Importer persists scanned-and-parsed GitHub service definitions as
// user-services YAML the Registry's own directory walk already knows
// how to load, and keeps a ledger of what it has imported so the
// GitHub-import endpoints can list and revoke them later.
type Importer struct {
	client      RepoContent
	userServDir string
	registry    Reloader

	mu       sync.RWMutex
	imported map[string]ImportedService
}

// New builds an Importer that writes into userServicesDir (spec's
// config/user-services/ on-disk layout) and invalidates reg after
// every write.
func New(client RepoContent, userServicesDir string, reg Reloader) *Importer {
	return &Importer{
		client:      client,
		userServDir: userServicesDir,
		registry:    reg,
		imported:    map[string]ImportedService{},
	}
}

// Register fetches filePath from owner/repo at ref, parses it, writes
// it verbatim under config/user-services/, and triggers a registry
// reload so the new services are immediately visible.
func (im *Importer) Register(ctx context.Context, owner, repo, ref, filePath string) (ImportedService, error) {
	data, err := im.client.GetFile(ctx, owner, repo, filePath, ref)
	if err != nil {
		return ImportedService{}, err
	}

	base := filepath.Base(filePath)
	destName := fmt.Sprintf("%s-%s-%s", owner, repo, base)
	destPath := filepath.Join(im.userServDir, destName)

	if _, err := registry.ParseComposeBytes(owner+"-"+repo, data, nil); err != nil {
		return ImportedService{}, fmt.Errorf("rejecting invalid compose file %s: %w", filePath, err)
	}

	if err := writeImportedFile(destPath, data); err != nil {
		return ImportedService{}, fmt.Errorf("persisting imported service: %w", err)
	}

	if err := im.registry.Reload(); err != nil {
		return ImportedService{}, fmt.Errorf("reloading registry after import: %w", err)
	}

	rec := ImportedService{
		ID:         uuid.NewString(),
		Repo:       owner + "/" + repo,
		Ref:        ref,
		SourcePath: filePath,
		FilePath:   destPath,
		ImportedAt: time.Now(),
	}
	im.mu.Lock()
	im.imported[rec.ID] = rec
	im.mu.Unlock()
	return rec, nil
}

// List returns every imported service, newest first.
func (im *Importer) List() []ImportedService {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]ImportedService, 0, len(im.imported))
	for _, rec := range im.imported {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportedAt.After(out[j].ImportedAt) })
	return out
}

// Remove deletes an imported service's on-disk file and ledger entry,
// then reloads the registry so the service disappears immediately.
func (im *Importer) Remove(id string) error {
	im.mu.Lock()
	rec, ok := im.imported[id]
	if ok {
		delete(im.imported, id)
	}
	im.mu.Unlock()
	if !ok {
		return fmt.Errorf("imported service %s not found", id)
	}

	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", rec.FilePath, err)
	}
	return im.registry.Reload()
}

// UpdateConfig overwrites one imported service's file with edited
// Compose bytes (used when the operator adjusts env defaults or image
// tags before keeping the import), then reloads the registry.
func (im *Importer) UpdateConfig(id string, data []byte) error {
	im.mu.RLock()
	rec, ok := im.imported[id]
	im.mu.RUnlock()
	if !ok {
		return fmt.Errorf("imported service %s not found", id)
	}
	if _, err := registry.ParseComposeBytes(rec.Repo, data, nil); err != nil {
		return fmt.Errorf("rejecting invalid compose file: %w", err)
	}
	if err := writeImportedFile(rec.FilePath, data); err != nil {
		return err
	}
	return im.registry.Reload()
}

// writeImportedFile persists data using the same write-temp-then-
// rename sequence internal/config uses for its layer files, so a
// crash mid-write never leaves a truncated service file under
// config/user-services.
func writeImportedFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
