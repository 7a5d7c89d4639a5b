package printer

import (
	"context"
	"time"
)

// RecoveryTuning holds the wait durations used by the composite recovery
// operations. They are empirical constants tied to physical process
// dynamics, overridable for machines that settle faster or slower.
type RecoveryTuning struct {
	// FilamentSettle is how long re-fed filament needs before resuming
	FilamentSettle time.Duration
	// ThermalRecovery is how long the tools need to climb back to target
	ThermalRecovery time.Duration
}

func (t RecoveryTuning) withDefaults() RecoveryTuning {
	if t.FilamentSettle <= 0 {
		t.FilamentSettle = DefaultFilamentSettle
	}
	if t.ThermalRecovery <= 0 {
		t.ThermalRecovery = DefaultThermalRecovery
	}
	return t
}

// sleep waits for d or until the context is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecoverFilamentSlip recovers a print whose filament has slipped out of
// the drive gear: pause, re-feed the filament, let it settle, resume. Each
// step runs as its own full operation with its own connection.
func (s *Session) RecoverFilamentSlip(ctx context.Context, toolIndex int) error {
	s.logger.Info().Int("tool", toolIndex).Msg("Recovering from filament slip")

	if _, err := s.Pause(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, s.tuning.FilamentSettle); err != nil {
		return err
	}
	if _, err := s.UnloadFilament(ctx, toolIndex); err != nil {
		return err
	}
	if _, err := s.LoadFilament(ctx, toolIndex); err != nil {
		return err
	}
	if err := sleep(ctx, s.tuning.FilamentSettle); err != nil {
		return err
	}

	_, err := s.Resume(ctx)
	return err
}

// RecoverTemperatureSag recovers a print whose tool temperature has sagged
// below target: pause, re-heat, wait out the thermal recovery, resume
func (s *Session) RecoverTemperatureSag(ctx context.Context, temperatures []int) error {
	s.logger.Info().Ints("temperatures", temperatures).Msg("Recovering from temperature sag")

	if _, err := s.Pause(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, s.tuning.ThermalRecovery); err != nil {
		return err
	}
	if _, err := s.Preheat(ctx, temperatures); err != nil {
		return err
	}
	if err := sleep(ctx, s.tuning.ThermalRecovery); err != nil {
		return err
	}

	_, err := s.Resume(ctx)
	return err
}
