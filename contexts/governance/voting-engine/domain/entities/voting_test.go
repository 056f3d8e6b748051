package entities

import (
	"errors"
	"testing"
	"time"

	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
)

func TestTallyPercentages(t *testing.T) {
	voting := Voting{
		Options: []string{"A", "B"},
		Votes:   map[int]int{0: 2, 1: 1},
	}
	results := Tally(voting)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Votes != 2 || results[0].Percentage != "66.7" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Votes != 1 || results[1].Percentage != "33.3" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestTallyRoundsHalvesUp(t *testing.T) {
	cases := []struct {
		votes map[int]int
		want  []string
	}{
		{votes: map[int]int{0: 1, 1: 79}, want: []string{"1.3", "98.8"}},
		{votes: map[int]int{0: 1, 1: 399}, want: []string{"0.3", "99.8"}},
		{votes: map[int]int{0: 1, 1: 1}, want: []string{"50.0", "50.0"}},
	}
	for _, tc := range cases {
		results := Tally(Voting{Options: []string{"A", "B"}, Votes: tc.votes})
		for i, result := range results {
			if result.Percentage != tc.want[i] {
				t.Fatalf("votes %v option %d: expected %s, got %s", tc.votes, i, tc.want[i], result.Percentage)
			}
		}
	}
}

func TestTallyEmptyBallotReportsZero(t *testing.T) {
	results := Tally(Voting{Options: []string{"A", "B", "C"}, Votes: map[int]int{}})
	for _, result := range results {
		if result.Votes != 0 || result.Percentage != "0" {
			t.Fatalf("expected zero result, got %+v", result)
		}
	}
}

func TestValidateSelection(t *testing.T) {
	single := Voting{Options: []string{"A", "B", "C"}}
	multi := Voting{Options: []string{"A", "B", "C"}, IsMultipleChoice: true}

	cases := []struct {
		name    string
		voting  Voting
		input   []int
		want    []int
		wantErr bool
	}{
		{name: "empty", voting: single, input: nil, wantErr: true},
		{name: "single ok", voting: single, input: []int{1}, want: []int{1}},
		{name: "single with two", voting: single, input: []int{0, 1}, wantErr: true},
		{name: "out of range", voting: multi, input: []int{3}, wantErr: true},
		{name: "negative", voting: multi, input: []int{-1}, wantErr: true},
		{name: "duplicate", voting: multi, input: []int{2, 2}, wantErr: true},
		{name: "multi sorted", voting: multi, input: []int{2, 0}, want: []int{0, 2}},
	}
	for _, tc := range cases {
		got, err := tc.voting.ValidateSelection(tc.input)
		if tc.wantErr {
			if !errors.Is(err, domainerrors.ErrInvalidSelection) {
				t.Fatalf("%s: expected ErrInvalidSelection, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
			}
		}
	}
}

func TestIsDueAtDeadline(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	voting := Voting{Status: VotingStatusActive, EndDate: end}
	if voting.IsDue(end.Add(-time.Second)) {
		t.Fatalf("ballot must not be due before the deadline")
	}
	if !voting.IsDue(end) {
		t.Fatalf("ballot must be due exactly at the deadline")
	}
	if voting.AcceptsVotes(end) {
		t.Fatalf("ballot must not accept votes at the deadline")
	}
	voting.Status = VotingStatusCompleted
	if voting.IsDue(end.Add(time.Hour)) {
		t.Fatalf("completed ballot must never be due")
	}
}

func TestRoleGates(t *testing.T) {
	if ParseRole("Guest").CanVote() {
		t.Fatalf("guest must not vote")
	}
	if !ParseRole(" member ").CanVote() {
		t.Fatalf("member must vote")
	}
	if ParseRole("member").CanAuthor() {
		t.Fatalf("member must not author ballots")
	}
	if !ParseRole("board_member").CanAuthor() || ParseRole("board_member").CanModerate() {
		t.Fatalf("board member authors but does not moderate")
	}
	if !ParseRole("chairman").CanModerate() || !ParseRole("admin").CanModerate() {
		t.Fatalf("chairman and admin moderate")
	}
	if ParseRole("superuser") != RoleGuest {
		t.Fatalf("unknown roles resolve to guest")
	}
}
