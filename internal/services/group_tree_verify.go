package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/observability"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// VerifyProgram is the deferred-constraint pair: acyclicity first, then
// index contiguity, over the whole program. Callers invoke it at the end of
// any transaction that touched structural columns; a failure aborts the
// transaction.
func (s *groupTreeService) VerifyProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) error {
	start := time.Now()
	err := s.verifyProgram(ctx, tx, programID)
	status := "ok"
	if err != nil {
		status = "violation"
	}
	observability.Current().ObserveTreeVerify(time.Since(start), status)
	return err
}

func (s *groupTreeService) verifyProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) error {
	groups, err := s.groups.ListByProgram(ctx, tx, programID)
	if err != nil {
		return err
	}
	observations, err := s.obs.ListByProgram(ctx, tx, programID)
	if err != nil {
		return err
	}
	if err := verifyAcyclic(groups); err != nil {
		return err
	}
	return verifyIndices(groups, observations)
}

const (
	walkUnvisited = 0
	walkActive    = 1
	walkDone      = 2
)

// verifyAcyclic walks every parent chain once. Hitting a node already on the
// active chain closes a cycle; the error names the node we stepped from and
// the node we stepped back onto.
func verifyAcyclic(groups []*types.Group) error {
	parents := make(map[uuid.UUID]*uuid.UUID, len(groups))
	for _, g := range groups {
		parents[g.ID] = g.ParentID
	}
	state := make(map[uuid.UUID]int, len(groups))
	for _, g := range groups {
		if state[g.ID] != walkUnvisited {
			continue
		}
		node := g.ID
		var chain []uuid.UUID
		for {
			if state[node] == walkActive {
				from := node
				if n := len(chain); n > 0 {
					from = chain[n-1]
				}
				return apperr.InvariantError(fmt.Sprintf("group hierarchy cycle detected between %s and %s", from, node))
			}
			if state[node] == walkDone {
				break
			}
			state[node] = walkActive
			chain = append(chain, node)
			parent, ok := parents[node]
			if !ok || parent == nil {
				break
			}
			node = *parent
		}
		for _, visited := range chain {
			state[visited] = walkDone
		}
	}
	return nil
}

// verifyIndices checks that every sibling bucket, groups and observations
// combined, holds exactly {0..n-1}.
func verifyIndices(groups []*types.Group, observations []*types.Observation) error {
	type bucket struct {
		label   string
		indices []int16
	}
	buckets := map[string]*bucket{}
	add := func(parentID *uuid.UUID, index int16) {
		key := "top-level"
		if parentID != nil {
			key = parentID.String()
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{label: key}
			buckets[key] = b
		}
		b.indices = append(b.indices, index)
	}
	for _, g := range groups {
		add(g.ParentID, g.ParentIndex)
	}
	for _, o := range observations {
		add(o.GroupID, o.GroupIndex)
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b := buckets[k]
		sort.Slice(b.indices, func(i, j int) bool { return b.indices[i] < b.indices[j] })
		for i, index := range b.indices {
			if index != int16(i) {
				return apperr.InvariantError(fmt.Sprintf("sibling indices of %s are not contiguous: found %d where %d was expected", b.label, index, i))
			}
		}
	}
	return nil
}

func sortChildren(children []*TreeChild) {
	sort.Slice(children, func(i, j int) bool { return children[i].Index < children[j].Index })
}
