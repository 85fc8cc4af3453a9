// Package resolve merges duplicate entity mentions across a document's
// segments into canonical entities, and rewrites relation endpoints to
// those canonical ids. Matching is exact on the normalized (type, name)
// key; there is deliberately no fuzzy matching, since that would change
// observable merge results.
package resolve

import (
	"github.com/google/uuid"
	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/extract"
	"github.com/loreweave/loreweave/pkg/fn"
)

// Resolution is the output of one merge pass.
type Resolution struct {
	// Entities holds one canonical entity per resolution key, in first-
	// mention order.
	Entities []domain.Entity
	// Relations are the candidates with endpoints rewritten to
	// canonical entity ids.
	Relations []domain.Relation
	// Mentions maps every original mention key to its canonical id.
	Mentions map[domain.ResolutionKey]string
}

// Resolve merges all candidates from a document's segments. It is a
// purely local, single-pass merge: entities from unrelated ingestion
// runs are reconciled by the store's upsert-by-key contract, not here.
func Resolve(candidates []extract.Candidate) Resolution {
	mentions := fn.FlatMap(candidates, func(c extract.Candidate) []domain.Entity {
		return c.Entities
	})

	res := Resolution{Mentions: make(map[domain.ResolutionKey]string)}

	groups := fn.GroupBy(mentions, domain.Entity.Key)
	// GroupBy does not order keys; iterate mentions to keep first-seen order.
	for _, m := range mentions {
		key := m.Key()
		if _, done := res.Mentions[key]; done {
			continue
		}
		canonical := merge(key, groups[key])
		res.Mentions[key] = canonical.ID
		res.Entities = append(res.Entities, canonical)
	}

	for _, c := range candidates {
		for _, rc := range c.Relations {
			subjID, okS := res.Mentions[domain.NewResolutionKey(rc.SubjectType, rc.SubjectName)]
			objID, okO := res.Mentions[domain.NewResolutionKey(rc.ObjectType, rc.ObjectName)]
			if !okS || !okO {
				continue // endpoint entity was dropped upstream
			}
			res.Relations = append(res.Relations, domain.Relation{
				SubjectID:  subjID,
				Type:       rc.Type,
				ObjectID:   objID,
				Properties: rc.Properties,
				SegmentID:  rc.SegmentID,
			})
		}
	}
	return res
}

// merge folds a key's mentions into one canonical entity. Property maps
// are merged first-wins: later values never overwrite earlier non-nil
// values. The canonical name and type are taken from the first mention.
func merge(key domain.ResolutionKey, group []domain.Entity) domain.Entity {
	first := group[0]
	out := domain.Entity{
		ID:   canonicalID(key),
		Type: first.Type,
		Name: first.Name,
	}

	props := make(map[string]any)
	var segIDs []string
	for _, m := range group {
		for k, v := range m.Properties {
			if existing, ok := props[k]; ok && existing != nil {
				continue
			}
			props[k] = v
		}
		segIDs = append(segIDs, m.SegmentIDs...)
	}
	if len(props) > 0 {
		out.Properties = props
	}
	out.SegmentIDs = fn.UniqueBy(segIDs, func(s string) string { return s })
	return out
}

// canonicalID derives a deterministic id from the resolution key, so
// re-ingesting the same entity lands on the same node id.
func canonicalID(key domain.ResolutionKey) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key.Type+"\x00"+key.Name)).String()
}
