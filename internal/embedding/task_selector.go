package embedding

import "github.com/antigravity-dev/prism/internal/logging"

// TaskType selects the GenAI embedding task type. Using the right task type
// measurably improves retrieval quality over a generic similarity embedding:
// documents and queries are projected differently even though they share a
// vector space.
type TaskType string

const (
	// TaskDocument is used when embedding a Skill body for storage.
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	// TaskQuery is used when embedding a Ranker query.
	TaskQuery TaskType = "RETRIEVAL_QUERY"
)

// SelectTaskType returns the task type for embedding a skill body (isQuery
// false) or a search query (isQuery true).
func SelectTaskType(isQuery bool) TaskType {
	if isQuery {
		logging.EmbeddingDebug("SelectTaskType: query embedding -> %s", TaskQuery)
		return TaskQuery
	}
	logging.EmbeddingDebug("SelectTaskType: document embedding -> %s", TaskDocument)
	return TaskDocument
}
