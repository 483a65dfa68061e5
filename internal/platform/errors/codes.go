package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnknownOperation Code = "UNKNOWN_OPERATION"

	// State availability
	CodeNotFound         Code = "NOT_FOUND"
	CodeNoScene          Code = "NO_SCENE"
	CodeStateUnavailable Code = "STATE_UNAVAILABLE"

	// Speaker errors
	CodeSpeakerSourceRequired Code = "SPEAKER_SOURCE_REQUIRED"

	// Participant errors
	CodeParticipantActorRequired Code = "PARTICIPANT_ACTOR_REQUIRED"
	CodeParticipantUserRequired  Code = "PARTICIPANT_USER_REQUIRED"

	// Roll errors
	CodeRollInvalidCheckType Code = "ROLL_INVALID_CHECK_TYPE"
	CodeRollSkillRequired    Code = "ROLL_SKILL_REQUIRED"

	// Challenge errors
	CodeChallengeNameRequired Code = "CHALLENGE_NAME_REQUIRED"
	CodeChallengeNameTaken    Code = "CHALLENGE_NAME_TAKEN"

	// Peer errors
	CodePeerTokenInvalid Code = "PEER_TOKEN_INVALID"
	CodePeerTokenExpired Code = "PEER_TOKEN_EXPIRED"
	CodePeerForbidden    Code = "PEER_FORBIDDEN"
	CodeRateLimited      Code = "RATE_LIMITED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidArgument,
		CodeSpeakerSourceRequired,
		CodeParticipantActorRequired,
		CodeParticipantUserRequired,
		CodeRollInvalidCheckType,
		CodeRollSkillRequired,
		CodeChallengeNameRequired:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation yet
	case CodeNoScene,
		CodeStateUnavailable:
		return codes.FailedPrecondition

	case CodeNotFound:
		return codes.NotFound

	case CodeChallengeNameTaken:
		return codes.AlreadyExists

	case CodeUnknownOperation:
		return codes.Unimplemented

	case CodePeerTokenInvalid,
		CodePeerTokenExpired:
		return codes.Unauthenticated

	case CodePeerForbidden:
		return codes.PermissionDenied

	case CodeRateLimited:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}

// Retryable reports whether a peer may retry the same request unchanged.
func (c Code) Retryable() bool {
	switch c.GRPCCode() {
	case codes.FailedPrecondition, codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
