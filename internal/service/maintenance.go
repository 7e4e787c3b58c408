package service

import (
	"context"
	"sort"
	"strings"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
)

// Lister enumerates blob-store object names within a folder.
type Lister interface {
	List(ctx context.Context, folder, namePrefix string) ([]string, error)
}

// Maintenance runs the offline consistency checks between the vector index,
// its side list, and the blob store.
type Maintenance struct {
	index  *vectorindex.Index
	blobs  Lister
	logger *logger.Logger
}

// NewMaintenance builds the maintenance service.
func NewMaintenance(index *vectorindex.Index, blobs Lister, log *logger.Logger) *Maintenance {
	return &Maintenance{index: index, blobs: blobs, logger: log}
}

// Reconcile compares the catalog, the side list and the uploaded originals.
// It reports divergence; it does not repair.
func (m *Maintenance) Reconcile(ctx context.Context) (*model.ReconcileReport, error) {
	indexIDs, err := m.index.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	sideIDs, err := m.index.SideListIDs()
	if err != nil {
		return nil, err
	}

	indexSet := toSet(indexIDs)
	sideSet := toSet(sideIDs)

	report := &model.ReconcileReport{
		IndexOnly:    []string{},
		SideListOnly: []string{},
		MissingBlobs: []string{},
	}
	for id := range indexSet {
		if !sideSet[id] {
			report.IndexOnly = append(report.IndexOnly, id)
		}
	}
	for id := range sideSet {
		if !indexSet[id] {
			report.SideListOnly = append(report.SideListOnly, id)
		}
	}

	objects, err := m.blobs.List(ctx, store.FolderFiles, "")
	if err != nil {
		return nil, err
	}
	uploaded := map[string]bool{}
	for _, name := range objects {
		uploaded[strings.TrimSuffix(name, pathExt(name))] = true
	}
	for id := range indexSet {
		if !uploaded[id] {
			report.MissingBlobs = append(report.MissingBlobs, id)
		}
	}

	sort.Strings(report.IndexOnly)
	sort.Strings(report.SideListOnly)
	sort.Strings(report.MissingBlobs)
	report.Consistent = len(report.IndexOnly) == 0 &&
		len(report.SideListOnly) == 0 &&
		len(report.MissingBlobs) == 0
	return report, nil
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
