package domain_test

import (
	"testing"

	"github.com/fastygo/hustle/domain"
)

func TestRolesFor(t *testing.T) {
	task := &domain.Task{ID: "t1", PostedBy: "u1", AcceptedBy: "u2", Status: domain.StatusAccepted}

	cases := []struct {
		viewer string
		want   domain.Roles
	}{
		{viewer: "u1", want: domain.Roles{IsOwner: true}},
		{viewer: "u2", want: domain.Roles{IsWorker: true, CanSeeContactDetails: true}},
		{viewer: "u3", want: domain.Roles{}},
	}
	for _, tc := range cases {
		got := task.RolesFor(tc.viewer)
		if got != tc.want {
			t.Errorf("viewer %s: got %+v, want %+v", tc.viewer, got, tc.want)
		}
	}
}

func TestRolesForOpenTask(t *testing.T) {
	task := &domain.Task{ID: "t1", PostedBy: "u1", Status: domain.StatusOpen}

	if task.RolesFor("u1").CanAccept {
		t.Fatalf("owner must not be able to accept their own task")
	}
	if !task.RolesFor("u3").CanAccept {
		t.Fatalf("other students should be able to accept an open task")
	}
	if task.RolesFor("").IsWorker {
		t.Fatalf("anonymous viewer matched the empty accepter")
	}
}

func TestTaskMatches(t *testing.T) {
	task := &domain.Task{Title: "Print posters", Description: "A3 colour, 20 copies"}
	for term, want := range map[string]bool{
		"":         true,
		"POSTERS":  true,
		"colour":   true,
		" print ":  true,
		"delivery": false,
	} {
		if got := task.Matches(term); got != want {
			t.Errorf("Matches(%q) = %v, want %v", term, got, want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusOpen, domain.StatusAccepted, domain.StatusCompleted} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if domain.Status("pending").Valid() {
		t.Errorf("pending is not a hustle status")
	}
}
