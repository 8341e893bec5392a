package github

import (
	"encoding/json"
	"strings"

	"github.com/livereview/reviewbridge/internal/apperrors"
)

// Header names GitHub sends with every webhook delivery.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// EventPullRequest is the X-GitHub-Event value for pull request activity.
const EventPullRequest = "pull_request"

var actionableActions = map[string]bool{
	"opened":      true,
	"reopened":    true,
	"synchronize": true,
}

// PullRequestEvent is one inbound delivery. RawBody holds the exact bytes the
// provider signed and must not be modified.
type PullRequestEvent struct {
	EventKind    string
	DeliveryID   string
	Signature    string
	RawBody      []byte
	Action       string
	RepoFullName string
	Number       *int
	HeadSHA      string
}

// webhookPayload is the subset of the pull_request payload the bridge reads.
type webhookPayload struct {
	Action      string `json:"action"`
	Number      *int   `json:"number"`
	PullRequest *struct {
		Number *int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// NewPullRequestEvent captures the delivery metadata before any parsing.
func NewPullRequestEvent(eventKind, deliveryID, signature string, rawBody []byte) *PullRequestEvent {
	return &PullRequestEvent{
		EventKind:  strings.TrimSpace(eventKind),
		DeliveryID: deliveryID,
		Signature:  signature,
		RawBody:    rawBody,
	}
}

// IsPullRequestKind reports whether the delivery is a pull_request event.
func (e *PullRequestEvent) IsPullRequestKind() bool {
	return e.EventKind == EventPullRequest
}

// Decode parses RawBody into the event fields. It never mutates RawBody.
func (e *PullRequestEvent) Decode() error {
	var payload webhookPayload
	if err := json.Unmarshal(e.RawBody, &payload); err != nil {
		return apperrors.Validation("webhook payload is not valid JSON",
			apperrors.FieldError{Field: "body", Message: err.Error()})
	}

	e.Action = payload.Action
	e.Number = payload.Number
	if payload.PullRequest != nil {
		if e.Number == nil {
			e.Number = payload.PullRequest.Number
		}
		e.HeadSHA = payload.PullRequest.Head.SHA
	}
	if payload.Repository != nil {
		e.RepoFullName = payload.Repository.FullName
	}
	return nil
}

// IsActionable reports whether the action triggers a review.
func (e *PullRequestEvent) IsActionable() bool {
	return actionableActions[e.Action]
}

// Identity returns owner, repository name and pull request number, or a
// validation error listing every missing or malformed field.
func (e *PullRequestEvent) Identity() (owner, repo string, number int, err error) {
	var fields []apperrors.FieldError

	parts := strings.Split(e.RepoFullName, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		fields = append(fields, apperrors.FieldError{
			Field:   "repository.full_name",
			Message: "must have the form owner/name",
		})
	} else {
		owner, repo = parts[0], parts[1]
	}

	if e.Number == nil {
		fields = append(fields, apperrors.FieldError{
			Field:   "number",
			Message: "pull request number is required",
		})
	} else if *e.Number <= 0 {
		fields = append(fields, apperrors.FieldError{
			Field:   "number",
			Message: "pull request number must be positive",
		})
	} else {
		number = *e.Number
	}

	if len(fields) > 0 {
		return "", "", 0, apperrors.Validation("webhook payload is missing pull request identity", fields...)
	}
	return owner, repo, number, nil
}
