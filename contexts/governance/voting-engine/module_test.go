package votingengine_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	votingengine "sntportal/contexts/governance/voting-engine"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
	httptransport "sntportal/contexts/governance/voting-engine/transport/http"
)

type stubRoster struct {
	mu      sync.Mutex
	calls   int
	members []entities.Member
	err     error
}

func (s *stubRoster) ListMembers(context.Context) ([]entities.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]entities.Member(nil), s.members...), nil
}

func (s *stubRoster) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubTransport struct {
	mu       sync.Mutex
	notices  []ports.VotingCompletedNotice
	failures int
}

func (s *stubTransport) SendVotingCompleted(_ context.Context, notice ports.VotingCompletedNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp relay unavailable")
	}
	s.notices = append(s.notices, notice)
	return nil
}

func (s *stubTransport) Sent() []ports.VotingCompletedNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.VotingCompletedNotice(nil), s.notices...)
}

var baseTime = time.Date(2026, time.July, 10, 9, 0, 0, 0, time.UTC)

func activeBallot(id string, end time.Time, multi bool) entities.Voting {
	return entities.Voting{
		VotingID:         id,
		Title:            "Road resurfacing",
		Description:      "Pick the contractor",
		Options:          []string{"Asphalt Co", "Gravel Ltd", "Do nothing"},
		IsMultipleChoice: multi,
		EndDate:          end,
		Status:           entities.VotingStatusActive,
		Votes:            map[int]int{},
		CreatedBy:        "board@example.com",
		CreatedAt:        baseTime.Add(-24 * time.Hour),
		UpdatedAt:        baseTime.Add(-24 * time.Hour),
	}
}

func owner(email string) entities.Voter {
	return entities.Voter{Email: email, Role: entities.RoleMember, IsOwner: true, FirstName: "Ann", LastName: "Lee", PlotNumber: "12"}
}

func newTestModule(t *testing.T, seed ...entities.Voting) (votingengine.Module, *stubRoster, *stubTransport) {
	t.Helper()
	roster := &stubRoster{members: []entities.Member{
		{Email: "ann@example.com", FirstName: "Ann", LastName: "Lee"},
		{Email: "bob@example.com", FirstName: "Bob", LastName: "Ray"},
	}}
	transport := &stubTransport{}
	module := votingengine.NewInMemoryModule(seed, roster, transport, nil)
	module.Store.SetNow(baseTime)
	return module, roster, transport
}

func TestCreateVotingValidatesAndReplays(t *testing.T) {
	module, _, _ := newTestModule(t)
	ctx := context.Background()
	author := entities.Voter{Email: "board@example.com", Role: entities.RoleBoardMember}
	req := httptransport.CreateVotingRequest{
		Title:       " Fence budget ",
		Description: "Choose the tier",
		Options:     []string{" Low ", "", "High"},
		EndDate:     baseTime.Add(72 * time.Hour),
	}

	first, err := module.Handler.CreateVotingHandler(ctx, author, "idem-create-1", req)
	if err != nil {
		t.Fatalf("create voting failed: %v", err)
	}
	if first.Voting.Title != "Fence budget" || len(first.Voting.Options) != 2 || first.Voting.Status != "active" {
		t.Fatalf("unexpected created ballot: %+v", first.Voting)
	}
	second, err := module.Handler.CreateVotingHandler(ctx, author, "idem-create-1", req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed || second.Voting.VotingID != first.Voting.VotingID {
		t.Fatalf("expected replay of %s, got %+v", first.Voting.VotingID, second)
	}

	changed := req
	changed.Title = "Different"
	if _, err := module.Handler.CreateVotingHandler(ctx, author, "idem-create-1", changed); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if _, err := module.Handler.CreateVotingHandler(ctx, author, "", req); !errors.Is(err, domainerrors.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := module.Handler.CreateVotingHandler(ctx, owner("ann@example.com"), "idem-create-2", req); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected members to be refused authoring, got %v", err)
	}

	invalid := []httptransport.CreateVotingRequest{
		{Title: "", Description: "d", Options: []string{"a", "b"}, EndDate: baseTime.Add(time.Hour)},
		{Title: "t", Description: "d", Options: []string{"only"}, EndDate: baseTime.Add(time.Hour)},
		{Title: "t", Description: "d", Options: strings.Split("a,b,c,d,e,f,g,h,i,j,k", ","), EndDate: baseTime.Add(time.Hour)},
		{Title: "t", Description: "d", Options: []string{"a", "b"}, EndDate: baseTime.Add(-time.Hour)},
	}
	for i, bad := range invalid {
		if _, err := module.Handler.CreateVotingHandler(ctx, author, "idem-bad", bad); !errors.Is(err, domainerrors.ErrInvalidVotingInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestCastVoteChecksEligibilityInOrder(t *testing.T) {
	module, _, _ := newTestModule(t, activeBallot("b-1", baseTime.Add(time.Hour), false))
	ctx := context.Background()
	req := httptransport.CastVoteRequest{OptionIndices: []int{0}}

	cases := []struct {
		name     string
		votingID string
		voter    entities.Voter
		want     error
	}{
		{"anonymous", "b-1", entities.Voter{}, domainerrors.ErrNotAuthenticated},
		{"guest before owner check", "missing", entities.Voter{Email: "g@example.com", Role: entities.RoleGuest}, domainerrors.ErrNotMember},
		{"non owner", "b-1", entities.Voter{Email: "t@example.com", Role: entities.RoleMember}, domainerrors.ErrOwnersOnly},
		{"unknown ballot", "missing", owner("ann@example.com"), domainerrors.ErrVotingNotFound},
	}
	for _, tc := range cases {
		if _, err := module.Handler.CastVoteHandler(ctx, tc.votingID, tc.voter, req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	voting, err := module.Store.GetVoting(ctx, "b-1")
	if err != nil {
		t.Fatalf("get voting failed: %v", err)
	}
	if voting.TotalVotes() != 0 {
		t.Fatalf("rejections must not touch the tally, got %v", voting.Votes)
	}
	if records, _ := module.Store.ListVoteRecords(ctx, "b-1"); len(records) != 0 {
		t.Fatalf("rejections must not write records, got %d", len(records))
	}
}

func TestCastVoteMultipleChoiceAndDuplicate(t *testing.T) {
	module, _, _ := newTestModule(t,
		activeBallot("multi", baseTime.Add(time.Hour), true),
		activeBallot("single", baseTime.Add(time.Hour), false),
	)
	ctx := context.Background()
	voter := owner("Ann@Example.com")

	resp, err := module.Handler.CastVoteHandler(ctx, "multi", voter, httptransport.CastVoteRequest{OptionIndices: []int{2, 0}})
	if err != nil {
		t.Fatalf("multi cast failed: %v", err)
	}
	if resp.Voting.Votes[0] != 1 || resp.Voting.Votes[2] != 1 || resp.Voting.TotalVotes != 2 {
		t.Fatalf("unexpected tally: %v", resp.Voting.Votes)
	}
	if resp.Record.VoterEmail != "ann@example.com" || len(resp.Record.SelectedOptions) != 2 {
		t.Fatalf("unexpected record: %+v", resp.Record)
	}
	if _, err := module.Handler.CastVoteHandler(ctx, "multi", voter, httptransport.CastVoteRequest{OptionIndices: []int{1}}); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}

	for _, indices := range [][]int{{0, 1}, {}, {3}, {-1}} {
		if _, err := module.Handler.CastVoteHandler(ctx, "single", voter, httptransport.CastVoteRequest{OptionIndices: indices}); !errors.Is(err, domainerrors.ErrInvalidSelection) {
			t.Fatalf("selection %v: expected invalid selection, got %v", indices, err)
		}
	}
	if _, err := module.Handler.CastVoteHandler(ctx, "single", voter, httptransport.CastVoteRequest{OptionIndices: []int{1}}); err != nil {
		t.Fatalf("single cast after invalid attempts failed: %v", err)
	}
}

func TestCastVoteOnPastDueBallotClosesAndDefersNotice(t *testing.T) {
	module, roster, transport := newTestModule(t, activeBallot("b-1", baseTime.Add(-time.Minute), false))
	ctx := context.Background()

	if _, err := module.Handler.CastVoteHandler(ctx, "b-1", owner("ann@example.com"), httptransport.CastVoteRequest{OptionIndices: []int{0}}); !errors.Is(err, domainerrors.ErrVotingClosed) {
		t.Fatalf("expected voting closed, got %v", err)
	}
	voting, _ := module.Store.GetVoting(ctx, "b-1")
	if voting.Status != entities.VotingStatusCompleted {
		t.Fatalf("expected ballot to be completed, got %s", voting.Status)
	}
	if voting.TotalVotes() != 0 {
		t.Fatalf("closed ballot tally changed: %v", voting.Votes)
	}
	if roster.Calls() != 0 || len(transport.Sent()) != 0 {
		t.Fatalf("a rejected cast must not wait on the notifier, got roster=%d sent=%d", roster.Calls(), len(transport.Sent()))
	}

	if err := module.Reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if roster.Calls() != 1 || len(transport.Sent()) != 1 {
		t.Fatalf("expected one roster call and one notice, got %d and %d", roster.Calls(), len(transport.Sent()))
	}
	notice := transport.Sent()[0]
	if notice.VotingID != "b-1" || len(notice.Recipients) != 2 || len(notice.Results) != 3 {
		t.Fatalf("unexpected notice: %+v", notice)
	}
}

func TestReconcileIsIdempotentAndNotifiesOnce(t *testing.T) {
	module, roster, transport := newTestModule(t, activeBallot("b-1", baseTime.Add(-time.Minute), false))
	ctx := context.Background()

	first, err := module.Handler.Lifecycle.Reconcile(ctx, "b-1")
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if !first.Completed || !first.Notified {
		t.Fatalf("expected completion and notice, got %+v", first)
	}
	second, err := module.Handler.Lifecycle.Reconcile(ctx, "b-1")
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Completed || second.Notified || second.Voting.Status != entities.VotingStatusCompleted {
		t.Fatalf("expected no-op second reconcile, got %+v", second)
	}
	if _, err := module.Handler.ListVotingsHandler(ctx, "completed"); err != nil {
		t.Fatalf("list completed failed: %v", err)
	}
	if roster.Calls() != 1 || len(transport.Sent()) != 1 {
		t.Fatalf("expected exactly one notice, got roster=%d sent=%d", roster.Calls(), len(transport.Sent()))
	}
}

func TestConcurrentReconcilesSendOneNotice(t *testing.T) {
	module, _, transport := newTestModule(t, activeBallot("b-1", baseTime.Add(-time.Minute), false))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = module.Handler.GetVotingHandler(ctx, "b-1", entities.Voter{})
			_, _ = module.Handler.Lifecycle.Reconcile(ctx, "b-1")
		}()
	}
	wg.Wait()
	if len(transport.Sent()) != 1 {
		t.Fatalf("expected exactly one notice under concurrent reconciles, got %d", len(transport.Sent()))
	}
}

// stalledTransport never answers; it only returns once the caller gives up.
type stalledTransport struct {
	mu    sync.Mutex
	calls int
}

func (s *stalledTransport) SendVotingCompleted(ctx context.Context, _ ports.VotingCompletedNotice) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalledTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestReadsDoNotWaitOnNotificationTransport(t *testing.T) {
	roster := &stubRoster{members: []entities.Member{{Email: "ann@example.com"}}}
	transport := &stalledTransport{}
	module := votingengine.NewInMemoryModule([]entities.Voting{
		activeBallot("due-1", baseTime.Add(-2*time.Hour), false),
		activeBallot("due-2", baseTime.Add(-time.Hour), false),
	}, roster, transport, nil)
	module.Store.SetNow(baseTime)
	ctx := context.Background()

	started := time.Now()
	completed, err := module.Handler.ListVotingsHandler(ctx, "completed")
	if err != nil {
		t.Fatalf("list completed failed: %v", err)
	}
	if len(completed.Items) != 2 {
		t.Fatalf("expected both due ballots listed as completed, got %+v", completed.Items)
	}
	if _, err := module.Handler.ListVotingsHandler(ctx, "completed"); err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if _, err := module.Handler.GetVotingHandler(ctx, "due-1", owner("ann@example.com")); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("reads took %s with a stalled notification service", elapsed)
	}
	if transport.Calls() != 0 {
		t.Fatalf("reads must not call the notification transport, got %d calls", transport.Calls())
	}
	if roster.Calls() != 0 {
		t.Fatalf("reads must not fetch the roster, got %d calls", roster.Calls())
	}
}

func TestTransportFailureIsRetriedOnNextSweep(t *testing.T) {
	module, _, transport := newTestModule(t, activeBallot("b-1", baseTime.Add(-time.Minute), false))
	transport.failures = 1
	ctx := context.Background()

	if err := module.Reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if _, found, _ := module.Store.GetReceipt(ctx, "b-1"); found {
		t.Fatalf("receipt must stay unset after a failed send")
	}
	voting, _ := module.Store.GetVoting(ctx, "b-1")
	if voting.Status != entities.VotingStatusCompleted {
		t.Fatalf("completion must survive a failed notice, got %s", voting.Status)
	}

	if err := module.Reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	receipt, found, _ := module.Store.GetReceipt(ctx, "b-1")
	if !found || !receipt.NotificationSent {
		t.Fatalf("expected receipt after retry, got %+v", receipt)
	}
	if len(transport.Sent()) != 1 {
		t.Fatalf("expected one delivered notice, got %d", len(transport.Sent()))
	}
}

func TestRosterFailureLeavesReceiptUnset(t *testing.T) {
	module, roster, transport := newTestModule(t, activeBallot("b-1", baseTime.Add(-time.Minute), false))
	roster.err = errors.New("users service down")
	ctx := context.Background()

	outcome, err := module.Handler.Lifecycle.Reconcile(ctx, "b-1")
	if err != nil {
		t.Fatalf("reconcile must not fail on notifier errors: %v", err)
	}
	if !errors.Is(outcome.NotifyErr, domainerrors.ErrRosterUnavailable) {
		t.Fatalf("expected roster error in outcome, got %v", outcome.NotifyErr)
	}
	if len(transport.Sent()) != 0 {
		t.Fatalf("no notice may be sent without a roster")
	}
}

func TestQueriesListGetAndResults(t *testing.T) {
	module, _, _ := newTestModule(t,
		activeBallot("open", baseTime.Add(time.Hour), false),
		activeBallot("due", baseTime.Add(-time.Hour), false),
	)
	ctx := context.Background()
	ann := owner("ann@example.com")
	if _, err := module.Handler.CastVoteHandler(ctx, "open", ann, httptransport.CastVoteRequest{OptionIndices: []int{1}}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	active, err := module.Handler.ListVotingsHandler(ctx, "active")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active.Items) != 1 || active.Items[0].VotingID != "open" {
		t.Fatalf("expected only the open ballot, got %+v", active.Items)
	}
	completed, err := module.Handler.ListVotingsHandler(ctx, "completed")
	if err != nil {
		t.Fatalf("list completed failed: %v", err)
	}
	if len(completed.Items) != 1 || completed.Items[0].Status != "completed" {
		t.Fatalf("expected the due ballot to be listed as completed, got %+v", completed.Items)
	}
	if _, err := module.Handler.ListVotingsHandler(ctx, "draft"); !errors.Is(err, domainerrors.ErrInvalidVotingInput) {
		t.Fatalf("expected invalid state error, got %v", err)
	}

	ballot, err := module.Handler.GetVotingHandler(ctx, "open", ann)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ballot.MyVote == nil || ballot.MyVote.SelectedOptions[0] != 1 {
		t.Fatalf("expected my vote on option 1, got %+v", ballot.MyVote)
	}
	if ballot.Voting.Results[1].Percentage != "100.0" || ballot.Voting.Results[0].Percentage != "0.0" {
		t.Fatalf("unexpected percentages: %+v", ballot.Voting.Results)
	}

	memberView, err := module.Handler.ResultsHandler(ctx, "open", ann)
	if err != nil {
		t.Fatalf("member results failed: %v", err)
	}
	if memberView.Voters != 1 || len(memberView.Records) != 0 {
		t.Fatalf("members see counts only, got %+v", memberView)
	}
	boardView, err := module.Handler.ResultsHandler(ctx, "open", entities.Voter{Email: "board@example.com", Role: entities.RoleBoardMember})
	if err != nil {
		t.Fatalf("board results failed: %v", err)
	}
	if len(boardView.Records) != 1 || boardView.Records[0].PlotNumber != "12" {
		t.Fatalf("board should see voter details, got %+v", boardView.Records)
	}
	if _, err := module.Handler.ResultsHandler(ctx, "open", entities.Voter{}); !errors.Is(err, domainerrors.ErrNotAuthenticated) {
		t.Fatalf("expected anonymous results to be refused, got %v", err)
	}

	var buf bytes.Buffer
	name, err := module.Handler.ExportResultsHandler(ctx, "open", entities.Voter{Email: "chair@example.com", Role: entities.RoleChairman}, &buf)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasSuffix(name, ".csv") || !strings.Contains(buf.String(), "ann@example.com") {
		t.Fatalf("unexpected export %q: %q", name, buf.String())
	}
	if _, err := module.Handler.ExportResultsHandler(ctx, "open", ann, &bytes.Buffer{}); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected members to be refused export, got %v", err)
	}
}

func TestArchiveAndDeleteRequireModerators(t *testing.T) {
	module, _, _ := newTestModule(t,
		activeBallot("done", baseTime.Add(-time.Hour), false),
		activeBallot("open", baseTime.Add(time.Hour), false),
	)
	ctx := context.Background()
	chair := entities.Voter{Email: "chair@example.com", Role: entities.RoleChairman}
	board := entities.Voter{Email: "board@example.com", Role: entities.RoleBoardMember}

	if _, err := module.Handler.ArchiveVotingHandler(ctx, "done", board); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected board member archive to be forbidden, got %v", err)
	}
	if _, err := module.Handler.ArchiveVotingHandler(ctx, "open", chair); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected active ballot archive to fail, got %v", err)
	}
	archived, err := module.Handler.ArchiveVotingHandler(ctx, "done", chair)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if !archived.Archived || archived.Status != "completed" {
		t.Fatalf("unexpected archived ballot: %+v", archived)
	}
	if _, err := module.Handler.ArchiveVotingHandler(ctx, "done", chair); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected second archive to fail, got %v", err)
	}
	list, _ := module.Handler.ListVotingsHandler(ctx, "archived")
	if len(list.Items) != 1 {
		t.Fatalf("expected one archived ballot, got %d", len(list.Items))
	}
	list, _ = module.Handler.ListVotingsHandler(ctx, "completed")
	if len(list.Items) != 0 {
		t.Fatalf("archived ballots leave the completed list, got %d", len(list.Items))
	}

	if _, err := module.Handler.CastVoteHandler(ctx, "open", owner("ann@example.com"), httptransport.CastVoteRequest{OptionIndices: []int{0}}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if _, err := module.Handler.DeleteVotingHandler(ctx, "open", board); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected board member delete to be forbidden, got %v", err)
	}
	deleted, err := module.Handler.DeleteVotingHandler(ctx, "open", entities.Voter{Email: "admin@example.com", Role: entities.RoleAdmin})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted.RemovedRecords != 1 {
		t.Fatalf("expected one removed record, got %d", deleted.RemovedRecords)
	}
	if _, err := module.Handler.GetVotingHandler(ctx, "open", chair); !errors.Is(err, domainerrors.ErrVotingNotFound) {
		t.Fatalf("expected deleted ballot to be gone, got %v", err)
	}
	if _, err := module.Handler.DeleteVotingHandler(ctx, "done", chair); err != nil {
		t.Fatalf("chairman delete of archived ballot failed: %v", err)
	}
}

func TestTriggerSweepIsAdminOnly(t *testing.T) {
	module, _, transport := newTestModule(t,
		activeBallot("b-1", baseTime.Add(-time.Hour), false),
		activeBallot("b-2", baseTime.Add(-time.Minute), false),
		activeBallot("b-3", baseTime.Add(time.Hour), false),
	)
	ctx := context.Background()

	if _, err := module.Handler.SweepHandler(ctx, entities.Voter{Email: "chair@example.com", Role: entities.RoleChairman}); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected chairman sweep to be forbidden, got %v", err)
	}
	summary, err := module.Handler.SweepHandler(ctx, entities.Voter{Email: "admin@example.com", Role: entities.RoleAdmin})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.Completed != 2 || summary.Notified != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected sweep summary: %+v", summary)
	}
	if len(transport.Sent()) != 2 {
		t.Fatalf("expected two notices, got %d", len(transport.Sent()))
	}
}
