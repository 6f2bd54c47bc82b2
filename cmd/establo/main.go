package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"EstabloLedger/internal/config"
	"EstabloLedger/internal/core"
	"EstabloLedger/internal/ingestion"
	"EstabloLedger/internal/observability"
	"EstabloLedger/internal/persistence"
	"EstabloLedger/internal/projection"
	"EstabloLedger/internal/query"
	"EstabloLedger/internal/server"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("establo starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("postgres", "nats", "replay")

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	healthChecker.SetComponentReady("postgres", true)
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Recovery: snapshot + replay ---
	snapStore := persistence.NewSnapshotStore(db)

	startSequence := int64(0)
	snap, err := snapStore.LoadLatest(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot failed, falling back to full replay")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		log.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// Persist channel blocks (backpressure), projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	persistWorkerChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	publishChan := make(chan ingestion.PublishableOutcome, cfg.PublishChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	engine := core.NewEngine(
		startSequence,
		persistCoreChan,
		projectionChan,
		dbChecker,
		cfg.IdempotencyLRUCapacity,
		metrics,
	)

	if snap != nil {
		if err := engine.RestoreFromSnapshot(snap); err != nil {
			log.Fatal().Err(err).Msg("restore snapshot")
		}
		log.Info().Int64("sequence", snap.Sequence).
			Int("idempotency_keys", len(snap.IdempotencyKeys)).
			Msg("restored in-memory state from snapshot")
	}
	// No explicit LRU warming on cold start: replay marks every logged
	// request as processed, which rebuilds the dedup tier as it goes.

	replayed, err := replayOutcomeLog(ctx, snapStore, engine, startSequence, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("replay outcome log")
	}
	if replayed > 0 {
		log.Info().Int64("rows", replayed).Int64("sequence", engine.GetSequence()).
			Msg("replayed outcome log")
	}

	// A clean restore with nothing to replay must land on the stored hash.
	if snap != nil && replayed == 0 {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := engine.GetStateHash(); actual != expected {
			log.Fatal().
				Hex("expected", expected[:]).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after snapshot restore")
		}
		log.Info().Msg("state hash verified after snapshot restore")
	}
	healthChecker.SetComponentReady("replay", true)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	healthChecker.SetComponentReady("nats", true)
	log.Info().Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure request stream")
	}
	if err := ingestion.EnsureOutcomeStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outcome stream")
	}

	rawRequestChan := make(chan ingestion.RawRequest, cfg.RequestChanSize)
	subscriber := ingestion.NewSubscriber(js, rawRequestChan)
	if err := subscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	publisher := ingestion.NewOutboundPublisher(js, publishChan, metrics)

	// --- API surface ---
	queryService := query.NewService(db, metrics)
	srv := server.New(cfg.GRPCAddr, cfg.HTTPAddr, &server.Deps{
		DB:            db,
		Query:         queryService,
		Submitter:     ingestion.NewSubmitter(js),
		SnapshotStore: snapStore,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		StartTime:     time.Now(),
	})

	// --- Goroutines ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewWorker(db, projectionChan, metrics)
	go func() { errChan <- projWorker.Run(ctx) }()

	go func() { errChan <- publisher.Run(ctx) }()

	go bridgeOutputs(ctx, persistCoreChan, persistWorkerChan, publishChan)
	go runRequestLoop(ctx, rawRequestChan, engine, log)

	go func() { errChan <- srv.StartGRPC(ctx) }()
	go func() { errChan <- srv.StartHTTP(ctx) }()

	go runMetricsServer(ctx, cfg.MetricsAddr, errChan, log)

	go runPeriodicSnapshots(ctx, engine, snapStore, cfg.SnapshotInterval, metrics, log)
	go reportChannelMetrics(ctx, metrics, persistCoreChan, projectionChan, publishChan)

	srv.SetServing(true)
	log.Info().
		Int64("sequence", engine.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("establo ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("worker failed, shutting down")
	}

	srv.SetServing(false)
	subscriber.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Workers drain and flush on ctx cancellation; the final snapshot makes
	// the next startup cheap.
	if err := takeSnapshot(shutdownCtx, engine, snapStore, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("establo shutdown complete")
}

// bridgeOutputs fans persisted core outputs out to the persistence worker
// (blocking, this is the durability path) and the outbound publisher
// (best-effort).
func bridgeOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	persistOut chan<- core.CoreOutput,
	publishOut chan<- ingestion.PublishableOutcome,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case output, ok := <-persistIn:
			if !ok {
				return
			}

			select {
			case persistOut <- output:
			case <-ctx.Done():
				return
			}

			select {
			case publishOut <- ingestion.PublishableOutcome{
				Sequence:       output.Envelope.Sequence,
				OutcomeType:    output.Envelope.Type.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Record:         output.Outcome,
				StateHash:      output.Envelope.StateHash[:],
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop when the publish channel is full. Consumers can
				// always catch up from the outcome log.
			}
		}
	}
}

// runRequestLoop decodes raw stream messages and feeds them to the core.
// Messages are acked after parse and validation, not after core processing:
// rejections are final and redelivery would just hit the dedup tier.
func runRequestLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawRequest,
	engine *core.Engine,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			requestType, err := ingestion.SubjectRequestType(raw.Subject)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Msg("unknown request subject")
				raw.AckFunc()
				continue
			}

			req, err := ingestion.ParseRequest(requestType, raw.Data)
			if err != nil {
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("parse request failed")
				raw.AckFunc()
				continue
			}
			raw.AckFunc()

			if err := engine.ProcessRequest(req); err != nil {
				log.Warn().Err(err).
					Str("request_type", requestType).
					Str("idempotency_key", req.IdempotencyKey()).
					Msg("request rejected")
			}
		}
	}
}

// replayOutcomeLog pages the outcome log from fromSequence and re-feeds the
// stored requests through the core. A request that produced two outcomes
// occupies two rows; the dedup LRU suppresses its second row.
func replayOutcomeLog(
	ctx context.Context,
	snapStore *persistence.SnapshotStore,
	engine *core.Engine,
	fromSequence int64,
	metrics *observability.Metrics,
) (int64, error) {
	const pageSize = 1000
	start := time.Now()
	var total int64

	for {
		rows, err := snapStore.LoadOutcomesFrom(ctx, fromSequence, pageSize)
		if err != nil {
			return total, fmt.Errorf("load outcomes from seq %d: %w", fromSequence, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			req, err := ingestion.ParseRequest(row.RequestType, row.Request)
			if err != nil {
				return total, fmt.Errorf("parse logged request at seq %d: %w", row.Sequence, err)
			}

			if err := engine.Replay(req); err != nil {
				return total, fmt.Errorf("replay seq %d: %w", row.Sequence, err)
			}
			total++
		}

		fromSequence = rows[len(rows)-1].Sequence + 1
	}

	if metrics != nil && total > 0 {
		metrics.ReplayRequests.Add(float64(total))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	return total, nil
}

// runPeriodicSnapshots persists a snapshot every interval outcomes.
func runPeriodicSnapshots(
	ctx context.Context,
	engine *core.Engine,
	snapStore *persistence.SnapshotStore,
	interval int64,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	lastSnapshotSeq := engine.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := engine.GetSequence()
			if currentSeq-lastSnapshotSeq < interval {
				continue
			}
			if err := takeSnapshot(ctx, engine, snapStore, metrics); err != nil {
				log.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSnapshotSeq = currentSeq
			log.Info().Int64("sequence", currentSeq).Msg("periodic snapshot saved")
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it. The
// snapshot is marked verified immediately since it came from live state.
func takeSnapshot(
	ctx context.Context,
	engine *core.Engine,
	snapStore *persistence.SnapshotStore,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snap := engine.CreateSnapshotState()
	if err := snapStore.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := snapStore.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return nil
}

func runMetricsServer(ctx context.Context, addr string, errChan chan<- error, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server: %w", err)
	}
}

// reportChannelMetrics samples channel depths for backpressure visibility.
func reportChannelMetrics(
	ctx context.Context,
	metrics *observability.Metrics,
	persistChan, projectionChan chan core.CoreOutput,
	publishChan chan ingestion.PublishableOutcome,
) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
			metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
			metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
		}
	}
}
