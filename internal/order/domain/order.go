package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Order is the aggregate a client submits and lab staff work through the
// lifecycle. Details are replaced wholesale on save; the status field is only
// ever advanced through the transition rules in status.go.
type Order struct {
	ID                 uuid.UUID    `json:"id"`
	CreatorID          string       `json:"creator_id"`
	Project            string       `json:"project"`
	LabID              string       `json:"lab_id,omitempty"`
	RequestNum         string       `json:"request_num,omitempty"`
	Status             Status       `json:"status"`
	Details            OrderDetails `json:"details"`
	ShareID            uuid.UUID    `json:"share_id"`
	ResultsFileID      string       `json:"results_file_id,omitempty"`
	Paid               bool         `json:"paid"`
	PaymentType        string       `json:"payment_type,omitempty"`
	SlothTransactionID *uuid.UUID   `json:"sloth_transaction_id,omitempty"`
	KfsTrackingNumber  string       `json:"kfs_tracking_number,omitempty"`
	Deleted            bool         `json:"deleted"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// New builds a freshly submitted order in the Created state. The details must
// already be priced by the caller; New only validates shape.
func New(creatorID, project string, details OrderDetails) (*Order, error) {
	if creatorID == "" {
		return nil, errors.New("creatorID is required")
	}
	if project == "" {
		verr := &ValidationError{}
		verr.add("project", "project is required")
		return nil, verr
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	return &Order{
		ID:        uuid.New(),
		CreatorID: creatorID,
		Project:   project,
		Status:    StatusCreated,
		Details:   details,
		ShareID:   uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *Order) apply(action Action) error {
	next, err := Next(o.Status, action)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()

	return nil
}

// Confirm moves a created order to Confirmed after its details re-validate.
func (o *Order) Confirm() error {
	if o.Status != StatusCreated {
		return &InvalidTransitionError{From: o.Status, Action: ActionConfirm}
	}
	if err := o.Details.Validate(); err != nil {
		return err
	}
	return o.apply(ActionConfirm)
}

// BeginEdit guards detail mutation: only confirmed orders may be edited.
func (o *Order) BeginEdit() error {
	_, err := Next(o.Status, ActionEdit)
	return err
}

// ReplaceDetails swaps in freshly re-priced details. The edit guard must
// pass; the status does not change.
func (o *Order) ReplaceDetails(project string, details OrderDetails) error {
	if err := o.BeginEdit(); err != nil {
		return err
	}
	if err := details.Validate(); err != nil {
		return err
	}
	o.Project = project
	o.Details = details
	o.UpdatedAt = time.Now().UTC()

	return nil
}

// Receive marks a confirmed order as physically received by the lab.
func (o *Order) Receive() error {
	return o.apply(ActionReceive)
}

// Complete finalizes a received order. It refuses to transition when the
// results file has not been uploaded.
func (o *Order) Complete(resultsUploaded bool) error {
	if o.Status != StatusReceived {
		return &InvalidTransitionError{From: o.Status, Action: ActionComplete}
	}
	if !resultsUploaded {
		return &InvalidTransitionError{From: o.Status, Action: ActionComplete, Reason: "results file has not been uploaded"}
	}
	return o.apply(ActionComplete)
}

// SoftDelete flags the order without touching its lifecycle status. Orders
// are never physically removed.
func (o *Order) SoftDelete() {
	o.Deleted = true
	o.UpdatedAt = time.Now().UTC()
}
