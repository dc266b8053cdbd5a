package domain

import (
	"errors"
	"testing"
	"time"
)

func validDetails() OrderDetails {
	return OrderDetails{
		Quantity:   3,
		SampleType: SampleSoil,
		SelectedTests: []TestDetails{
			{Code: "SOIL-01", CostMinor: 1000, SetupMinor: 500, SubTotalMinor: 3000, TotalMinor: 3500},
		},
		TotalMinor:  3500,
		Payment:     Payment{ClientType: ClientTypeUC, Account: "3-ABC1234"},
		ClientInfo:  ClientInfo{Name: "Test Client", Email: "client@example.com"},
		DateSampled: time.Now().UTC(),
	}
}

func TestNewOrderStartsCreated(t *testing.T) {
	o, err := New("user-1", "Field trial", validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusCreated {
		t.Fatalf("status: got %s want created", o.Status)
	}
	if o.Deleted {
		t.Fatal("new order should not be deleted")
	}
}

func TestNewOrderRejectsInvalidDetails(t *testing.T) {
	d := validDetails()
	d.Quantity = 0
	d.SelectedTests = nil

	_, err := New("user-1", "Field trial", d)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("want 2 field errors, got %d: %v", len(verr.Fields), verr.Fields)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	o, err := New("user-1", "Field trial", validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := o.Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := o.Complete(true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if o.Status != StatusComplete {
		t.Fatalf("status: got %s want complete", o.Status)
	}
}

func TestReceiveFromCreatedFails(t *testing.T) {
	o, _ := New("user-1", "Field trial", validDetails())

	err := o.Receive()
	var terr *InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if o.Status != StatusCreated {
		t.Fatalf("status must be unchanged, got %s", o.Status)
	}
}

func TestCompleteWithoutResultsFileFails(t *testing.T) {
	o, _ := New("user-1", "Field trial", validDetails())
	_ = o.Confirm()
	_ = o.Receive()

	err := o.Complete(false)
	var terr *InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if o.Status != StatusReceived {
		t.Fatalf("status must stay received, got %s", o.Status)
	}
}

func TestEditOnlyAllowedWhenConfirmed(t *testing.T) {
	o, _ := New("user-1", "Field trial", validDetails())

	if err := o.BeginEdit(); err == nil {
		t.Fatal("edit of created order should fail")
	}
	_ = o.Confirm()
	if err := o.BeginEdit(); err != nil {
		t.Fatalf("edit of confirmed order: %v", err)
	}
	_ = o.Receive()
	err := o.ReplaceDetails("Field trial", validDetails())
	var terr *InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	o, _ := New("user-1", "Field trial", validDetails())
	_ = o.Confirm()
	_ = o.Receive()
	_ = o.Complete(true)

	for _, a := range []Action{ActionConfirm, ActionEdit, ActionReceive, ActionComplete} {
		if _, err := Next(o.Status, a); err == nil {
			t.Fatalf("action %s should be rejected in complete state", a)
		}
	}
}

func TestGrandTotalIsDerived(t *testing.T) {
	d := validDetails()
	d.TotalMinor = 5300
	d.AdjustmentMinor = -250

	if got, want := d.GrandTotalMinor(), int64(5050); got != want {
		t.Fatalf("grand total: got %d want %d", got, want)
	}
}
