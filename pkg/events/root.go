package events

import (
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"

	"petsysrecon/internal/models"
	perrors "petsysrecon/pkg/errors"
)

// ReadROOT reads the event branches of treeName from a ROOT file. Branches
// that are not event fields are skipped; scalar branches of any numeric
// type are widened to float64.
func ReadROOT(path, treeName string) (*Table, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ROOT file: %w", err)
	}
	defer f.Close()

	obj, err := f.Get(treeName)
	if err != nil {
		return nil, perrors.NewDataError("", "tree %q: %v", treeName, err)
	}
	tree, ok := obj.(rtree.Tree)
	if !ok {
		return nil, perrors.NewDataError("", "object %q is a %T, not a tree", treeName, obj)
	}

	wanted := make(map[string]bool, len(models.EventFields))
	for _, name := range models.EventFields {
		wanted[name] = true
	}

	var rvars []rtree.ReadVar
	for _, rv := range rtree.NewReadVars(tree) {
		if wanted[rv.Name] {
			rvars = append(rvars, rv)
		}
	}
	if len(rvars) == 0 {
		return nil, perrors.NewDataError("", "tree %q has no event branches", treeName)
	}

	r, err := rtree.NewReader(tree, rvars)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree reader: %w", err)
	}
	defer r.Close()

	cols := make([][]float64, len(rvars))
	for i := range cols {
		cols[i] = make([]float64, 0, tree.Entries())
	}
	err = r.Read(func(ctx rtree.RCtx) error {
		for i, rv := range rvars {
			v, err := scalar(rv.Value)
			if err != nil {
				return perrors.NewDataError(rv.Name, "entry %d: %v", ctx.Entry, err)
			}
			cols[i] = append(cols[i], v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tree %q: %w", treeName, err)
	}

	t := NewTable()
	for i, rv := range rvars {
		if err := t.AddColumn(rv.Name, cols[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func scalar(ptr any) (float64, error) {
	switch v := ptr.(type) {
	case *float64:
		return *v, nil
	case *float32:
		return float64(*v), nil
	case *int8:
		return float64(*v), nil
	case *int16:
		return float64(*v), nil
	case *int32:
		return float64(*v), nil
	case *int64:
		return float64(*v), nil
	case *uint8:
		return float64(*v), nil
	case *uint16:
		return float64(*v), nil
	case *uint32:
		return float64(*v), nil
	case *uint64:
		return float64(*v), nil
	case *bool:
		if *v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported branch type %T", ptr)
	}
}
