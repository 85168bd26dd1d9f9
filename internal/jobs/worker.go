package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/observability"
	"github.com/orionsky/obsdb-backend/internal/repos"
	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// Runtime drives both calc machines: each worker goroutine polls its queue,
// claims the stalest entry, computes, and writes the completion back through
// the service layer. The claim/complete protocol makes a crashed worker
// harmless: its entry sits in calculating until the next invalidation
// requeues it.
type Runtime struct {
	log        *logger.Logger
	cfg        Config
	obscalc    services.ObscalcService
	blind      services.BlindOffsetService
	calculator services.ItcClient
	obs        repos.ObservationRepo
	gmos       repos.GmosLongSlitRepo
	asterism   repos.AsterismRepo
	targets    repos.TargetRepo
}

func NewRuntime(
	baseLog *logger.Logger,
	cfg Config,
	obscalc services.ObscalcService,
	blind services.BlindOffsetService,
	calculator services.ItcClient,
	obs repos.ObservationRepo,
	gmos repos.GmosLongSlitRepo,
	asterism repos.AsterismRepo,
	targets repos.TargetRepo,
) *Runtime {
	return &Runtime{
		log:        baseLog.With("component", "CalcRuntime"),
		cfg:        cfg,
		obscalc:    obscalc,
		blind:      blind,
		calculator: calculator,
		obs:        obs,
		gmos:       gmos,
		asterism:   asterism,
		targets:    targets,
	}
}

// Start blocks until ctx is cancelled and every worker goroutine has
// returned.
func (r *Runtime) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.ObscalcWorkers; i++ {
		worker := i
		g.Go(func() error {
			r.pollLoop(gctx, fmt.Sprintf("obscalc-%d", worker), r.obscalcCycle)
			return nil
		})
	}
	for i := 0; i < r.cfg.BlindOffsetWorkers; i++ {
		worker := i
		g.Go(func() error {
			r.pollLoop(gctx, fmt.Sprintf("blind-offset-%d", worker), r.blindOffsetCycle)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runtime) pollLoop(ctx context.Context, name string, cycle func(ctx context.Context) (bool, error)) {
	log := r.log.With("worker", name)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				worked, err := cycle(ctx)
				if err != nil {
					log.Warn("worker cycle failed", "error", err)
					break
				}
				// Drain the queue before sleeping again.
				if !worked || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (r *Runtime) obscalcCycle(ctx context.Context) (bool, error) {
	entry, err := r.obscalc.Claim(ctx)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	observability.Current().IncClaim("obscalc")
	start := time.Now()
	outcome := r.processObscalc(ctx, entry)
	observability.Current().ObserveCompletion("obscalc", outcome, time.Since(start))
	return true, nil
}

func (r *Runtime) processObscalc(ctx context.Context, entry *types.Obscalc) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("obscalc handler panic", "observation_id", entry.ObservationID, "panic", rec)
			_ = r.obscalc.Fail(ctx, entry.ObservationID, entry.LastInvalidation, fmt.Sprintf("panic: %v", rec))
			outcome = "panic"
		}
	}()

	calcCtx, cancel := context.WithTimeout(ctx, r.cfg.CalcTimeout)
	defer cancel()

	input, err := r.buildItcInput(calcCtx, entry.ObservationID)
	if err != nil {
		_ = r.obscalc.Fail(ctx, entry.ObservationID, entry.LastInvalidation, err.Error())
		return "fail"
	}

	result, err := r.calculator.Calculate(calcCtx, input)
	if err != nil {
		var calcErr *services.CalcError
		if errors.As(err, &calcErr) && !calcErr.Recoverable {
			odbError, _ := json.Marshal(map[string]interface{}{
				"message": calcErr.Detail,
				"status":  calcErr.Status,
			})
			if err := r.obscalc.CompleteError(ctx, entry.ObservationID, entry.LastInvalidation, datatypes.JSON(odbError)); err != nil {
				r.log.Warn("obscalc error completion failed", "observation_id", entry.ObservationID, "error", err)
			}
			return "error"
		}
		_ = r.obscalc.Fail(ctx, entry.ObservationID, entry.LastInvalidation, err.Error())
		return "fail"
	}

	if err := r.obscalc.CompleteSuccess(ctx, entry.ObservationID, entry.LastInvalidation, result); err != nil {
		r.log.Warn("obscalc completion failed", "observation_id", entry.ObservationID, "error", err)
		return "fail"
	}
	return "success"
}

func (r *Runtime) buildItcInput(ctx context.Context, observationID uuid.UUID) (*services.ItcInput, error) {
	obs, err := r.obs.GetByID(ctx, nil, observationID)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("observation %s not found", observationID)
	}
	mode, err := r.gmos.GetByObservation(ctx, nil, observationID)
	if err != nil {
		return nil, err
	}
	targets, err := r.loadAsterism(ctx, observationID)
	if err != nil {
		return nil, err
	}
	return &services.ItcInput{
		Observation: obs,
		Mode:        mode,
		Targets:     targets,
	}, nil
}

func (r *Runtime) loadAsterism(ctx context.Context, observationID uuid.UUID) ([]*types.Target, error) {
	ids, err := r.asterism.ListTargetIDs(ctx, nil, observationID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.targets.GetByIDs(ctx, nil, ids)
}

func (r *Runtime) blindOffsetCycle(ctx context.Context) (bool, error) {
	entry, err := r.blind.Claim(ctx)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	observability.Current().IncClaim("blind_offset")
	start := time.Now()
	outcome := r.processBlindOffset(ctx, entry)
	observability.Current().ObserveCompletion("blind_offset", outcome, time.Since(start))
	return true, nil
}

func (r *Runtime) processBlindOffset(ctx context.Context, entry *types.BlindOffset) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("blind-offset handler panic", "observation_id", entry.ObservationID, "panic", rec)
			_ = r.blind.Fail(ctx, entry.ObservationID, entry.LastInvalidation, fmt.Sprintf("panic: %v", rec))
			outcome = "panic"
		}
	}()

	targets, err := r.loadAsterism(ctx, entry.ObservationID)
	if err != nil {
		_ = r.blind.Fail(ctx, entry.ObservationID, entry.LastInvalidation, err.Error())
		return "fail"
	}
	offset, err := computeBlindOffset(targets)
	if err != nil {
		_ = r.blind.Fail(ctx, entry.ObservationID, entry.LastInvalidation, err.Error())
		return "fail"
	}
	if err := r.blind.CompleteSuccess(ctx, entry.ObservationID, entry.LastInvalidation, offset); err != nil {
		r.log.Warn("blind-offset completion failed", "observation_id", entry.ObservationID, "error", err)
		return "fail"
	}
	return "success"
}

// computeBlindOffset derives the acquisition offset from the asterism: the
// base position is the first target, the pointing center is the asterism
// centroid, and the offset is the base relative to that center in µas.
func computeBlindOffset(targets []*types.Target) (datatypes.JSON, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("asterism is empty")
	}
	var sumRA, sumDec int64
	for _, t := range targets {
		sumRA += t.RA
		sumDec += t.Dec
	}
	n := int64(len(targets))
	base := targets[0]
	payload, err := json.Marshal(map[string]int64{
		"delta_ra_uas":  base.RA - sumRA/n,
		"delta_dec_uas": base.Dec - sumDec/n,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(payload), nil
}
