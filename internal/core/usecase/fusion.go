package usecase

import (
	"log/slog"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

// fuseHybridCandidates intersects lexical and semantic hits by chunk id,
// keeping the semantic ordering and payloads. When the intersection is empty
// the semantic list passes through unchanged, so a dead lexical index never
// silences retrieval.
func fuseHybridCandidates(lexical, semantic []domain.RetrievalCandidate) []domain.RetrievalCandidate {
	if len(lexical) == 0 {
		return semantic
	}

	lexicalIDs := make(map[string]struct{}, len(lexical))
	for _, c := range lexical {
		lexicalIDs[c.Chunk.ID] = struct{}{}
	}

	fused := make([]domain.RetrievalCandidate, 0, len(semantic))
	for _, c := range semantic {
		if _, ok := lexicalIDs[c.Chunk.ID]; ok {
			fused = append(fused, c)
		}
	}

	if len(fused) == 0 {
		slog.Warn("hybrid_fusion_no_intersection", "lexical", len(lexical), "semantic", len(semantic))
		return semantic
	}
	return fused
}
