package votingengine

import (
	"log/slog"
	"time"

	httpadapter "sntportal/contexts/governance/voting-engine/adapters/http"
	"sntportal/contexts/governance/voting-engine/adapters/memory"
	"sntportal/contexts/governance/voting-engine/application/commands"
	"sntportal/contexts/governance/voting-engine/application/notifications"
	"sntportal/contexts/governance/voting-engine/application/queries"
	"sntportal/contexts/governance/voting-engine/application/workers"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	"sntportal/contexts/governance/voting-engine/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Reconciler workers.Reconciler
	Dispatcher workers.CompletionDispatcher
	Relay      workers.OutboxRelay
	Store      *memory.Store
}

// Dependencies lists the ports a module runs on. The memory, gorm and badger
// stores each implement every storage port.
type Dependencies struct {
	Votings        ports.VotingRepository
	Ledger         ports.VoteLedger
	Receipts       ports.NotificationReceiptStore
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	OutboxReader   ports.OutboxRepository
	Publisher      ports.EventPublisher
	Roster         ports.RosterProvider
	Transport      ports.NotificationTransport
	Metrics        ports.Metrics
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	NotifyTimeout  time.Duration
	SweepBatchSize int
	OutboxBatch    int
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	var notifier ports.CompletionNotifier
	if deps.Roster != nil && deps.Transport != nil && deps.Receipts != nil {
		notifier = notifications.Notifier{
			Receipts:  deps.Receipts,
			Roster:    deps.Roster,
			Transport: deps.Transport,
			Clock:     deps.Clock,
			Metrics:   deps.Metrics,
			Timeout:   deps.NotifyTimeout,
			Locks:     &notifications.BallotLocks{},
			Logger:    deps.Logger,
		}
	}
	lifecycle := commands.LifecycleUseCase{
		Votings:        deps.Votings,
		Receipts:       deps.Receipts,
		Notifier:       notifier,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		Metrics:        deps.Metrics,
		SweepBatchSize: deps.SweepBatchSize,
		Logger:         deps.Logger,
	}
	module := Module{
		Handler: httpadapter.Handler{
			Create: commands.CreateVotingUseCase{
				Votings:        deps.Votings,
				Idempotency:    deps.Idempotency,
				Outbox:         deps.Outbox,
				Clock:          deps.Clock,
				IDGen:          deps.IDGen,
				Metrics:        deps.Metrics,
				IdempotencyTTL: deps.IdempotencyTTL,
				Logger:         deps.Logger,
			},
			Cast: commands.CastVoteUseCase{
				Votings:   deps.Votings,
				Ledger:    deps.Ledger,
				Lifecycle: lifecycle,
				Outbox:    deps.Outbox,
				Clock:     deps.Clock,
				IDGen:     deps.IDGen,
				Metrics:   deps.Metrics,
				Logger:    deps.Logger,
			},
			Lifecycle: lifecycle,
			Queries: queries.VotingQueries{
				Votings:   deps.Votings,
				Ledger:    deps.Ledger,
				Lifecycle: lifecycle,
				Clock:     deps.Clock,
				Logger:    deps.Logger,
			},
			Logger: deps.Logger,
		},
		Reconciler: workers.Reconciler{
			Lifecycle: lifecycle,
			Logger:    deps.Logger,
		},
		Dispatcher: workers.CompletionDispatcher{
			Lifecycle: lifecycle,
			Logger:    deps.Logger,
		},
	}
	if deps.OutboxReader != nil && deps.Publisher != nil {
		module.Relay = workers.OutboxRelay{
			Outbox:    deps.OutboxReader,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatch,
			Logger:    deps.Logger,
		}
	}
	return module
}

// NewInMemoryModule backs every storage port with one memory.Store. roster
// and transport may be nil, which disables completion notices.
func NewInMemoryModule(
	seed []entities.Voting,
	roster ports.RosterProvider,
	transport ports.NotificationTransport,
	logger *slog.Logger,
) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Votings:        store,
		Ledger:         store,
		Receipts:       store,
		Idempotency:    store,
		Outbox:         store,
		OutboxReader:   store,
		Roster:         roster,
		Transport:      transport,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
