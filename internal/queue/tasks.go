package queue

const (
	TypeReindex = "index:reindex"
)

// ReindexPayload carries why a reindex pass was requested. Reason is for
// logs only; every pass covers the whole corpus incrementally.
type ReindexPayload struct {
	Reason string `json:"reason"`
}
