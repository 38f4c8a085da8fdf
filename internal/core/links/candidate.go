package links

import (
	"context"
	"errors"
)

// ErrNotApplicable indicates a strategy had nothing to do for the given input.
var ErrNotApplicable = errors.New("strategy not applicable")

// CandidateKind tags the outcome of a single resolution attempt.
type CandidateKind int

const (
	Unresolvable CandidateKind = iota
	Resolved
	NeedsRemoteResolution
)

func (k CandidateKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case NeedsRemoteResolution:
		return "needs_remote_resolution"
	default:
		return "unresolvable"
	}
}

// Candidate is the tagged result of a decode or resolve attempt. A Resolved
// URL is not trusted until the Resolver has validated its host.
type Candidate struct {
	Kind       CandidateKind
	URL        string
	Identifier string
	Strategy   string
	Err        error
}

func resolvedCandidate(u string) Candidate {
	return Candidate{Kind: Resolved, URL: u}
}

func remoteCandidate(identifier string) Candidate {
	return Candidate{Kind: NeedsRemoteResolution, Identifier: identifier}
}

func unresolvable(err error) Candidate {
	return Candidate{Kind: Unresolvable, Err: err}
}

// Input is what every strategy receives: the parsed link and the candidate
// produced by the strategy before it.
type Input struct {
	Link     *RedirectLink
	Previous Candidate
}

// Strategy is one step of the resolution chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in Input) Candidate
}
