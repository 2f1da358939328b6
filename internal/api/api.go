package api

// Failure classes carried in operation payloads. A payload failure is a
// successful remote response whose body reports a rejection; transport
// faults are never encoded here and surface as Go errors on the caller.
const (
	CodeNotRegistered = "not_registered"
	CodeAlreadyVoted  = "already_voted"
	CodeQuorumFailed  = "quorum_failed"
	CodeStateConflict = "state_conflict"
	CodeUnavailable   = "unavailable"
)

// Route paths served by every replica. The /internal prefix marks the
// peer-only surface; it shares the listener with the public routes.
const (
	PathAuthenticate   = "/v1/authenticate"
	PathVoted          = "/v1/voted/{username}"
	PathVotes          = "/v1/votes"
	PathResults        = "/v1/results"
	PathInternalUpdate = "/internal/v1/update"
	PathInternalState  = "/internal/v1/state"
)

// AuthenticateRequest carries a voter's credentials.
type AuthenticateRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// AuthenticateResponse reports whether the credentials matched.
type AuthenticateResponse struct {
	OK bool `json:"ok"`
}

// VotedResponse reports membership in the replica's voted set.
type VotedResponse struct {
	Voted bool `json:"voted"`
}

// VoteRequest casts a vote. RequestID is generated by the client and
// carried through replication for log correlation.
type VoteRequest struct {
	Username  string `json:"username"`
	Candidate string `json:"candidate"`
	RequestID string `json:"request_id,omitempty"`
}

// VoteResult is the structured outcome of cast-vote and replicated-update
// operations. OK=false with a Code is an application failure, not a fault,
// and is never retried by the client controller.
type VoteResult struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// UpdateRequest is the peer-side replication of an already-validated vote.
type UpdateRequest struct {
	Username      string `json:"username"`
	Candidate     string `json:"candidate"`
	CoordinatorID string `json:"coordinator_id"`
	RequestID     string `json:"request_id,omitempty"`
}

// ResultsResponse is a snapshot of the tally.
type ResultsResponse struct {
	Results map[string]int `json:"results"`
}

// FullState is the wholesale snapshot a recovering replica installs.
type FullState struct {
	Votes      map[string]int `json:"votes"`
	VotedUsers []string       `json:"voted_users"`
}
