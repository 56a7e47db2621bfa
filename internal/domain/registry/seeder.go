package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/loader"
)

// Seeded records a context preloaded from disk.
type Seeded struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Seeder preloads contexts from seed files on startup.
type Seeder struct {
	manager *Manager
	dir     string
}

// NewSeeder creates a seeder reading from dir.
func NewSeeder(manager *Manager, dir string) *Seeder {
	return &Seeder{manager: manager, dir: dir}
}

// Seed creates one context per JSON, YAML or TOML file under the seed
// directory. A script next to a seed file with the same base name (for
// example counter.yaml and counter.js) runs once in the new context.
// Files that fail are logged and skipped.
func (s *Seeder) Seed(ctx context.Context) ([]Seeded, error) {
	log := s.manager.log
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		log.Warn("seed directory not found", zap.String("dir", s.dir))
		return nil, nil
	}

	files, err := loader.Walk(ctx, s.dir, ".json", ".yaml", ".yml", ".toml")
	if err != nil {
		return nil, err
	}

	var seeded []Seeded
	failed := 0
	for _, path := range files {
		sd, err := s.seedFile(ctx, path)
		if err != nil {
			log.Warn("failed to seed context", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		log.Info("seeded context", zap.String("name", sd.Name), zap.String("context", sd.ID))
		seeded = append(seeded, sd)
	}

	log.Info("seeding complete", zap.Int("loaded", len(seeded)), zap.Int("failed", failed))
	return seeded, nil
}

func (s *Seeder) seedFile(ctx context.Context, path string) (Seeded, error) {
	obj, err := loader.LoadSeed(path)
	if err != nil {
		return Seeded{}, err
	}
	info, err := s.manager.Create(obj)
	if err != nil {
		return Seeded{}, err
	}
	sd := Seeded{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), ID: info.ID}

	initPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".js"
	if _, err := os.Stat(initPath); err != nil {
		return sd, nil
	}
	script, err := loader.ReadScript(initPath)
	if err == nil {
		_, err = s.manager.Run(ctx, info.ID, script.Source, initPath)
	}
	if err != nil {
		_ = s.manager.Dispose(info.ID)
		return Seeded{}, fmt.Errorf("init script %s: %w", initPath, err)
	}
	return sd, nil
}
