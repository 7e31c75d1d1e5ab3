package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/omaps-oss/resman/internal/manager"
	"github.com/omaps-oss/resman/internal/model"
)

// ListLocal prints the installed resources after a rescan.
func ListLocal(ctx context.Context, m *manager.Manager) error {
	if err := m.Rescan(ctx); err != nil {
		Stderrf("could not scan local storage: %v", err)
		return err
	}
	resources := m.LocalResources()
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	for _, r := range resources {
		Stdoutf("%-8s %12d  %s", r.Type, r.ContentSize, r.Name)
	}
	return nil
}

// ListRemote refreshes the catalog and prints the repository index.
func ListRemote(ctx context.Context, m *manager.Manager) error {
	if err := m.RefreshCatalog(ctx); err != nil {
		Stderrf("could not refresh repository index: %v", err)
		return err
	}
	resources := m.RemoteResources()
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	for _, r := range resources {
		Stdoutf("%-8s %12d  %s", r.Type, r.ContentSize, r.Name)
	}
	return nil
}

// Install installs from a local container file or, when path is empty, from
// the repository.
func Install(ctx context.Context, m *manager.Manager, name, path string, typ model.ResourceType) error {
	if err := m.Rescan(ctx); err != nil {
		Stderrf("could not scan local storage: %v", err)
		return err
	}
	if path != "" {
		if err := m.InstallFromFile(ctx, name, path, typ); err != nil {
			Stderrf("install failed: %v", err)
			return err
		}
		Stdoutf("installed %s", nameOrGuess(name, path))
		return nil
	}
	if err := m.RefreshCatalog(ctx); err != nil {
		Stderrf("could not refresh repository index: %v", err)
		return err
	}
	if err := m.InstallFromRepository(ctx, name, progressPrinter()); err != nil {
		Stderrf("install failed: %v", err)
		return err
	}
	Stdoutf("installed %s", name)
	return nil
}

// Uninstall removes an installed resource.
func Uninstall(ctx context.Context, m *manager.Manager, name string) error {
	if err := m.Rescan(ctx); err != nil {
		Stderrf("could not scan local storage: %v", err)
		return err
	}
	if err := m.Uninstall(ctx, name); err != nil {
		Stderrf("uninstall failed: %v", err)
		return err
	}
	Stdoutf("uninstalled %s", name)
	return nil
}

// Update replaces an installed resource, from a container file or from the
// repository.
func Update(ctx context.Context, m *manager.Manager, name, path string) error {
	if err := m.Rescan(ctx); err != nil {
		Stderrf("could not scan local storage: %v", err)
		return err
	}
	if path != "" {
		if err := m.UpdateFromFile(ctx, name, path); err != nil {
			Stderrf("update failed: %v", err)
			return err
		}
		Stdoutf("updated %s", nameOrGuess(name, path))
		return nil
	}
	if err := m.RefreshCatalog(ctx); err != nil {
		Stderrf("could not refresh repository index: %v", err)
		return err
	}
	if err := m.UpdateFromRepository(ctx, name, progressPrinter()); err != nil {
		Stderrf("update failed: %v", err)
		return err
	}
	Stdoutf("updated %s", name)
	return nil
}

// ListUpdates prints the names of installed resources with newer builds in
// the repository.
func ListUpdates(ctx context.Context, m *manager.Manager) error {
	if err := m.Rescan(ctx); err != nil {
		Stderrf("could not scan local storage: %v", err)
		return err
	}
	if err := m.RefreshCatalog(ctx); err != nil {
		Stderrf("could not refresh repository index: %v", err)
		return err
	}
	updates := m.AvailableUpdates()
	sort.Strings(updates)
	for _, n := range updates {
		Stdoutf("%s", n)
	}
	return nil
}

func nameOrGuess(name, path string) string {
	if name != "" {
		return name
	}
	return manager.GuessResourceName(path)
}

func progressPrinter() func(transferred, total int64) bool {
	return func(transferred, total int64) bool {
		if total > 0 {
			_, _ = fmt.Printf("\r%3d%%", transferred*100/total)
			if transferred == total {
				_, _ = fmt.Println()
			}
		}
		return true
	}
}
