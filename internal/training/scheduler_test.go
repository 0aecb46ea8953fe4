package training

import (
	"testing"

	"github.com/sunosaathi/sanket/internal/nn"
)

func TestPlateauSchedulerReduces(t *testing.T) {
	opt := nn.NewAdam(0.1)
	sched := NewPlateauScheduler(opt, 0.5, 2)

	steps := []struct {
		valLoss    float64
		wantReduce bool
		wantLR     float64
	}{
		{1.0, false, 0.1},   // first observation becomes best
		{0.9, false, 0.1},   // improvement
		{0.95, false, 0.1},  // bad 1
		{0.96, true, 0.05},  // bad 2: reduce
		{0.97, false, 0.05}, // counter reset; bad 1
		{0.98, true, 0.025}, // bad 2: reduce again
	}

	for i, step := range steps {
		reduced := sched.Step(step.valLoss)
		if reduced != step.wantReduce {
			t.Errorf("step %d (loss %v): reduced = %v, want %v", i, step.valLoss, reduced, step.wantReduce)
		}
		if sched.LR() != step.wantLR {
			t.Errorf("step %d (loss %v): LR = %v, want %v", i, step.valLoss, sched.LR(), step.wantLR)
		}
	}
}

func TestPlateauSchedulerImprovementResets(t *testing.T) {
	opt := nn.NewAdam(0.1)
	sched := NewPlateauScheduler(opt, 0.5, 2)

	sched.Step(1.0) // best
	sched.Step(1.1) // bad 1
	sched.Step(0.5) // new best, counter resets
	sched.Step(0.6) // bad 1

	if opt.LR != 0.1 {
		t.Errorf("expected LR unchanged at 0.1, got %v", opt.LR)
	}

	if !sched.Step(0.7) { // bad 2: reduce
		t.Error("expected reduction after patience exhausted")
	}
	if opt.LR != 0.05 {
		t.Errorf("expected LR 0.05 after reduction, got %v", opt.LR)
	}
}

func TestPlateauSchedulerEqualLossIsNotImprovement(t *testing.T) {
	opt := nn.NewAdam(0.1)
	sched := NewPlateauScheduler(opt, 0.5, 1)

	sched.Step(1.0)
	if !sched.Step(1.0) {
		t.Error("expected matching the best loss to count toward the plateau")
	}
	if opt.LR != 0.05 {
		t.Errorf("expected LR 0.05, got %v", opt.LR)
	}
}
